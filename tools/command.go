package tools

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Fenix46/VibeCLI/errors"
)

// dangerousCommands are refused when dangerous command protection is on.
var dangerousCommands = []*regexp.Regexp{
	regexp.MustCompile(`sudo\s`),
	regexp.MustCompile(`rm\s+-rf`),
	regexp.MustCompile(`rm\s+.*\*`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`curl\s+.*http`),
	regexp.MustCompile(`wget\s+.*http`),
	regexp.MustCompile(`dd\s+if=`),
	regexp.MustCompile(`mkfs\.`),
	regexp.MustCompile(`fdisk`),
	regexp.MustCompile(`parted`),
	regexp.MustCompile(`systemctl`),
	regexp.MustCompile(`service\s`),
	regexp.MustCompile(`shutdown`),
	regexp.MustCompile(`reboot`),
	regexp.MustCompile(`init\s+[0-6]`),
	regexp.MustCompile(`kill\s+-9`),
	regexp.MustCompile(`killall`),
	regexp.MustCompile(`chmod\s+777`),
	regexp.MustCompile(`chown\s+.*root`),
}

// IsDangerousCommand reports whether command matches a known destructive pattern.
func IsDangerousCommand(command string) bool {
	lower := strings.ToLower(command)
	for _, re := range dangerousCommands {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// ExecuteShellTool runs a command through sh in the project directory.
type ExecuteShellTool struct {
	dir             string
	allowedCommands []string
	protect         bool
}

func (t *ExecuteShellTool) Name() string { return "execute_shell" }
func (t *ExecuteShellTool) Description() string {
	desc := "Executes a shell command in the project directory and returns its combined output."
	if len(t.allowedCommands) == 0 {
		return desc
	}
	var sb strings.Builder
	sb.WriteString(desc)
	sb.WriteString("\nAllowed command patterns:\n")
	for _, cmd := range t.allowedCommands {
		fmt.Fprintf(&sb, "- %s\n", cmd)
	}
	return sb.String()
}
func (t *ExecuteShellTool) Parameters() *Schema {
	return Object(map[string]*Schema{"command": String("Command line passed to sh -c.")}, "command")
}
func (t *ExecuteShellTool) IsDestructive(map[string]interface{}) bool { return true }

func (t *ExecuteShellTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	command := strings.TrimSpace(stringArg(args, "command"))
	if command == "" {
		return "", errors.New("missing or empty 'command' argument")
	}
	if t.protect && IsDangerousCommand(command) {
		return "", errors.New("command '%s' blocked by dangerous command protection", command)
	}
	if len(t.allowedCommands) > 0 && !matchesAny(command, t.allowedCommands) {
		return "", errors.New("command '%s' is not in the list of allowed commands", command)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = t.dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.Wrapf(err, "command execution failed. Output:\n%s", string(output))
	}
	return fmt.Sprintf("Command executed successfully. Output:\n%s", string(output)), nil
}
