package permission

import "fmt"

// Policy selects the classification rule set.
type Policy string

const (
	// PolicyReadOnly auto-approves read-only tools and denies everything else.
	PolicyReadOnly Policy = "read-only"
	// PolicyStandard auto-approves read-only tools and escalates writes to a human.
	PolicyStandard Policy = "standard"
	// PolicyStrict escalates every tool call to a human.
	PolicyStrict Policy = "strict"
	// PolicyPermissive auto-approves everything.
	PolicyPermissive Policy = "permissive"
)

// defaultAction is what a policy does with tools matching neither list.
type defaultAction int

const (
	defaultHuman defaultAction = iota
	defaultDeny
	defaultAllow
)

// ruleSet is a policy's auto-approve list, human-confirm list, and default.
type ruleSet struct {
	autoApprove  []string
	humanConfirm []string
	fallback     defaultAction
}

// readOnlyTools is the shared auto-approve list of side-effect-free tools.
var readOnlyTools = []string{
	"Read",
	"Grep",
	"Glob",
	"Bash(ls:*)",
	"Bash(cat:*)",
	"Bash(head:*)",
	"Bash(tail:*)",
	"Bash(pwd)",
	"Bash(which:*)",
	"Bash(git status:*)",
	"Bash(git log:*)",
	"Bash(git diff:*)",
	"Bash(git show:*)",
}

// writeConfirmTools is the Standard policy's human-confirm list.
var writeConfirmTools = []string{
	"Edit",
	"Write",
	"Bash(rm:*)",
	"Bash(mv:*)",
	"Bash(npm:*)",
	"Bash(git commit:*)",
}

var policies = map[Policy]ruleSet{
	PolicyReadOnly: {
		autoApprove: readOnlyTools,
		fallback:    defaultDeny,
	},
	PolicyStandard: {
		autoApprove:  readOnlyTools,
		humanConfirm: writeConfirmTools,
		fallback:     defaultHuman,
	},
	PolicyStrict: {
		humanConfirm: []string{"*"},
		fallback:     defaultHuman,
	},
	PolicyPermissive: {
		autoApprove: []string{"*"},
		fallback:    defaultAllow,
	},
}

// ParsePolicy converts a config string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(s)
	if _, ok := policies[p]; !ok {
		return "", fmt.Errorf("unknown permission policy %q", s)
	}
	return p, nil
}
