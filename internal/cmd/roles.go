package cmd

import (
	"encoding/json"
	"fmt"
)

type RolesCmd struct {
	RoleSource
}

func (r *RolesCmd) Run(ctx *Context) error {
	list, err := resolveRoles(ctx.Config, r.RoleSource)
	if err != nil {
		return err
	}

	if ctx.JSONOutput {
		enc := json.NewEncoder(ctx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	for i, role := range list {
		if _, err := fmt.Fprintf(ctx.Out, "%d\t%s\n", i+1, role); err != nil {
			return err
		}
	}
	return nil
}
