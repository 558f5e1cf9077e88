// Command stentor runs the chat orchestration gateway.
//
// Usage:
//
//	stentor serve --config stentor.yaml
//	stentor serve                          (zero-config, local ollama)
//	stentor validate stentor.yaml
//	stentor schema > stentor-config.schema.json
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/stentorlabs/stentor"
	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP gateway."`
	Chat     ChatCmd     `cmd:"" help:"Chat with the gateway from the terminal, no server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration document."`
	Schema   SchemaCmd   `cmd:"" help:"Print the configuration JSON schema."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string   `short:"c" help:"Configuration document path (file path, or key path for remote sources)." type:"path"`
	Source    string   `help:"Configuration source: file, consul, etcd, or zookeeper." default:"file" env:"STENTOR_CONFIG_SOURCE"`
	Endpoints []string `help:"Remote configuration source endpoints." placeholder:"HOST:PORT" env:"STENTOR_CONFIG_ENDPOINTS"`
	Watch     bool     `help:"Reload the configuration when the source changes."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" env:"STENTOR_LOG_LEVEL"`
	LogFile   string `help:"Log file path (empty logs to stderr)." env:"STENTOR_LOG_FILE"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple" env:"STENTOR_LOG_FORMAT"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	// Module builds report their tagged version; source builds fall
	// back to the baked-in one.
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			stentor.Version = info.Main.Version
		}
	}
	fmt.Println(stentor.VersionInfo())
	return nil
}

// initLogging configures the process console logger from the global
// flags. The returned cleanup closes the log file, when one is used.
func initLogging(cli *CLI) (func(), error) {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	var cleanup func()
	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		output, cleanup = file, closeFile
	}

	logger.Init(level, output, cli.LogFormat, cli.LogFile == "")
	return cleanup, nil
}

// printBanner writes the startup banner when stdout is a terminal.
func printBanner() {
	if fileInfo, err := os.Stdout.Stat(); err != nil || (fileInfo.Mode()&os.ModeCharDevice) == 0 {
		return
	}

	// Amber: #f59e0b = RGB(245, 158, 11)
	accent := "\033[38;2;245;158;11m"
	reset := "\033[0m"

	banner := `
███████╗████████╗███████╗███╗   ██╗████████╗ ██████╗ ██████╗
██╔════╝╚══██╔══╝██╔════╝████╗  ██║╚══██╔══╝██╔═══██╗██╔══██╗
███████╗   ██║   █████╗  ██╔██╗ ██║   ██║   ██║   ██║██████╔╝
╚════██║   ██║   ██╔══╝  ██║╚██╗██║   ██║   ██║   ██║██╔══██╗
███████║   ██║   ███████╗██║ ╚████║   ██║   ╚██████╔╝██║  ██║
╚══════╝   ╚═╝   ╚══════╝╚═╝  ╚═══╝   ╚═╝    ╚═════╝ ╚═╝  ╚═╝
`
	fmt.Printf("%s%s%s\n", accent, banner, reset)
}

// shouldSkipBanner reports whether the invoked command is
// informational; those write machine-readable output, so no banner.
func shouldSkipBanner(args []string) bool {
	for _, arg := range args[1:] {
		if arg == "validate" || arg == "schema" || arg == "version" {
			return true
		}
	}
	return false
}

func main() {
	if !shouldSkipBanner(os.Args) {
		printBanner()
	}

	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("stentor"),
		kong.Description("Stentor - chat orchestration gateway with strategy routing and a provider cascade"),
		kong.UsageOnError(),
	)

	cleanup, err := initLogging(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
