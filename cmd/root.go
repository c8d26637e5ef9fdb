package cmd

import (
	"errors"
	"os"
	"strings"

	"github.com/fitteam/fitlib/internal/api"
	"github.com/fitteam/fitlib/internal/output"
	"github.com/fitteam/fitlib/internal/portaldb"
	"github.com/spf13/cobra"
)

var (
	version    string
	dbPath     string
	configPath string
	jsonOut    bool
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "fitlib",
	Short: "Fit Team Library admin CLI",
	Long: `fitlib - administration tool for the Fit Team Library portal.

Operates directly on the portal database: schema migrations, accounts and
grades, session tokens, the menu permission table and the leave calendar.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

// reportError prints err in the selected output mode.
func reportError(err error) {
	if !jsonOut {
		output.Error("%v", err)
		return
	}
	code := output.ErrCodeDatabaseError
	switch {
	case errors.Is(err, portaldb.ErrNotFound):
		code = output.ErrCodeNotFound
	case errors.Is(err, portaldb.ErrInvalidInput):
		code = output.ErrCodeInvalidInput
	case errors.Is(err, portaldb.ErrConflict):
		code = output.ErrCodeConflict
	case errors.Is(err, errUsage):
		code = output.ErrCodeInvalidInput
	}
	output.JSONError(code, err.Error())
}

var errUsage = errors.New("usage")

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)
	cobra.AddTemplateFunc("add", func(a, b int) int { return a + b })

	usageTemplate := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddGroup(
		&cobra.Group{ID: "accounts", Title: "Account Commands:"},
		&cobra.Group{ID: "portal", Title: "Portal Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&dbPath, "db", "", "path to the portal database (default: db_path from config)")
	flags.StringVar(&configPath, "config", "", "path to YAML config (default: $FITLIB_CONFIG)")
	flags.BoolVar(&jsonOut, "json", false, "print machine-readable JSON")
}

// loadConfig reads the server configuration the CLI shares with fitlib-server.
func loadConfig() (api.Config, error) {
	return api.LoadConfig(configPath)
}

// openStore opens the portal database named by --db or the config file and
// resolves dates in the configured timezone.
func openStore() (*portaldb.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := dbPath
	if path == "" {
		path = cfg.DBPath
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	store, err := portaldb.Open(path)
	if err != nil {
		return nil, err
	}
	store.SetLocation(loc)
	return store, nil
}
