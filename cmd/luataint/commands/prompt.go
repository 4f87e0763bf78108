package commands

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/l3aro/luataint/pkg/cfg"
	"github.com/l3aro/luataint/pkg/vulns"
)

// formPrompter asks on the terminal whether taint flows through a blackbox
// call. The detector records each answer in the blackbox mapping.
type formPrompter struct{}

func (formPrompter) Propagates(call *cfg.Node, v *vulns.Vulnerability) (bool, error) {
	var propagates bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title(fmt.Sprintf("Unknown call %s", call.FuncName)).
				Description(fmt.Sprintf("%s\n\n%s", call.String(), v.String())),
			huh.NewConfirm().
				Title(fmt.Sprintf("Is the return value of %s tainted by its arguments?", call.FuncName)).
				Affirmative("Yes, it propagates").
				Negative("No").
				Value(&propagates),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("interactive prompt failed: %w", err)
	}
	return propagates, nil
}
