package gateway

import (
	"regexp"
	"strings"

	"github.com/coriolis-labs/conductor/state"
)

// SlashCommand is one parsed leading slash-command plus its byte offsets in
// the original message (SPEC_FULL §12.4, generalizing spec §6's
// single-command-per-prefix description to the multi-command case real chat
// inputs exhibit, e.g. "/planning /approval:all do the thing").
type SlashCommand struct {
	Name  string
	Value string
	Start int
	End   int
}

var slashCommandPattern = regexp.MustCompile(`^/([a-zA-Z]+)(?::([a-zA-Z]+))?`)

// ParseSlashCommands recognizes every leading slash-command in message and
// returns them with source offsets, plus the remainder of message with all
// recognized commands (and the whitespace separating them) stripped (spec
// §4.11 step 2).
func ParseSlashCommands(message string) ([]SlashCommand, string) {
	var commands []SlashCommand
	pos := 0
	for {
		for pos < len(message) && (message[pos] == ' ' || message[pos] == '\t') {
			pos++
		}
		if pos >= len(message) || message[pos] != '/' {
			break
		}
		loc := slashCommandPattern.FindStringSubmatchIndex(message[pos:])
		if loc == nil {
			break
		}
		name := message[pos+loc[2] : pos+loc[3]]
		value := ""
		if loc[4] != -1 {
			value = message[pos+loc[4] : pos+loc[5]]
		}
		start := pos
		end := pos + loc[1]
		commands = append(commands, SlashCommand{
			Name:  strings.ToLower(name),
			Value: strings.ToLower(value),
			Start: start,
			End:   end,
		})
		pos = end
	}
	for pos < len(message) && (message[pos] == ' ' || message[pos] == '\t') {
		pos++
	}
	return commands, message[pos:]
}

// ApplySlashCommands folds each recognized command into a copy of control
// (spec §6 slash-command surface) and returns the names of any commands it
// did not recognize, for the caller to log (spec §6: "Unknown commands:
// ignored, logged").
func ApplySlashCommands(control state.AgentControl, commands []SlashCommand) (state.AgentControl, []string) {
	var unknown []string
	for _, c := range commands {
		switch c.Name {
		case "planning":
			control.PlanningMode = c.Value != "off"
		case "approval":
			switch c.Value {
			case "disabled":
				control.ApprovalMode = state.ApprovalDisabled
			case "selective":
				control.ApprovalMode = state.ApprovalSelective
			case "all":
				control.ApprovalMode = state.ApprovalAll
			default:
				unknown = append(unknown, "/approval:"+c.Value)
			}
		case "debug":
			control.Debug = c.Value != "off"
		case "task":
			if c.Value == "off" {
				control.BypassTaskExtraction = true
			} else {
				unknown = append(unknown, "/task:"+c.Value)
			}
		case "caps":
			if c.Value == "off" {
				control.BypassClassification = true
			} else {
				unknown = append(unknown, "/caps:"+c.Value)
			}
		default:
			unknown = append(unknown, "/"+c.Name)
		}
	}
	return control, unknown
}
