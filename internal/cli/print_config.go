package cli

import (
	"context"

	"github.com/calvinalkan/zkfuzz/internal/config"
)

func printConfigCmd(a *app) *Command {
	c := newCommand("print-config")
	c.Short = "Show resolved configuration"
	c.Long = "Display the effective configuration and which files it was loaded from."
	c.Exec = func(_ context.Context, o *IO, _ []string) error {
		cfg, err := a.loadConfig(config.Partial{})
		if err != nil {
			return err
		}

		return execPrintConfig(o, cfg)
	}

	return c
}

func execPrintConfig(o *IO, cfg config.Config) error {
	formatted, err := config.Format(cfg)
	if err != nil {
		return err
	}

	o.Println(formatted)
	o.Println("")
	o.Println("# resolved")
	o.Println("effective_cwd=" + cfg.EffectiveCwd)
	o.Println("failures_dir=" + cfg.FailuresDirAbs)
	o.Println("")
	o.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		o.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			o.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			o.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}
