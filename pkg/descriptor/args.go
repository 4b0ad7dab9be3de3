package descriptor

import "strings"

// Arguments is the launcher's command line after descriptor selection.
type Arguments struct {
	// DescriptorPath is the descriptor named on the command line, empty if none.
	DescriptorPath string

	// Forward are the arguments passed on to the application.
	Forward []string
}

// ParseArgs extracts the descriptor selection from raw arguments.
// props=<file>, --props=<file> and --props <file> select the descriptor;
// log4j=<file> arguments are dropped; everything else is forwarded in order.
func ParseArgs(args []string) Arguments {
	var parsed Arguments
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "props="):
			parsed.DescriptorPath = strings.TrimPrefix(arg, "props=")
		case strings.HasPrefix(arg, "--props="):
			parsed.DescriptorPath = strings.TrimPrefix(arg, "--props=")
		case arg == "--props" && i+1 < len(args):
			parsed.DescriptorPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "log4j="):
		default:
			parsed.Forward = append(parsed.Forward, arg)
		}
	}
	return parsed
}
