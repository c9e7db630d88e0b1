package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"variantcore/internal/evalctx"
)

// Context-building flags shared by evaluate and assign.
var (
	ctxUserID    string
	ctxSessionID string
	ctxRole      string
	ctxSegment   string
	ctxCountry   string
	ctxDevice    string
	ctxBrowser   string
	ctxProps     []string
)

// buildContext assembles an evaluation context from the command flags.
func buildContext() (*evalctx.Context, error) {
	ctx := &evalctx.Context{Environment: env}

	if ctxUserID != "" || ctxRole != "" || ctxSegment != "" || ctxCountry != "" {
		ctx.User = &evalctx.User{
			ID:      ctxUserID,
			Role:    ctxRole,
			Segment: ctxSegment,
			Country: ctxCountry,
		}
	}
	if ctxSessionID != "" || ctxDevice != "" || ctxBrowser != "" {
		ctx.Session = &evalctx.Session{
			ID:         ctxSessionID,
			DeviceType: evalctx.DeviceType(ctxDevice),
			Browser:    ctxBrowser,
		}
	}

	for _, prop := range ctxProps {
		key, value, ok := strings.Cut(prop, "=")
		if !ok {
			return nil, fmt.Errorf("invalid property %q, expected key=value", prop)
		}
		if ctx.CustomProperties == nil {
			ctx.CustomProperties = make(map[string]any)
		}
		ctx.CustomProperties[key] = value
	}

	return ctx, nil
}

// registerContextFlags adds the shared context flags to a command.
func registerContextFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ctxUserID, "user", "", "User ID")
	cmd.Flags().StringVar(&ctxSessionID, "session", "", "Session ID")
	cmd.Flags().StringVar(&ctxRole, "role", "", "User role")
	cmd.Flags().StringVar(&ctxSegment, "segment", "", "User segment")
	cmd.Flags().StringVar(&ctxCountry, "country", "", "User country")
	cmd.Flags().StringVar(&ctxDevice, "device", "", "Device type (mobile, desktop, tablet)")
	cmd.Flags().StringVar(&ctxBrowser, "browser", "", "Browser name")
	cmd.Flags().StringArrayVar(&ctxProps, "prop", nil, "Custom property key=value (repeatable)")
}
