package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/alouette/tts/internal/config"
)

var (
	configShow bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Edit the alouette-tts config file",
		Long: paragraph(fmt.Sprintf("\n%s the alouette-tts config file. We’ll use EDITOR to determine which editor to use. "+
			"If the config file doesn't exist, it will be created.", keyword("Edit"))),
		Example: paragraph("alouette-tts config\nalouette-tts config --config path/to/config.yml\nalouette-tts config --show"),
		Args:    cobra.NoArgs,
		RunE:    runConfig,
	}
)

func init() {
	configCmd.Flags().BoolVar(&configShow, "show", false, "print the effective configuration instead of editing")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	if configShow {
		c, err := config.Load(v)
		if err != nil {
			return err
		}
		return config.Write(cmd.OutOrStdout(), c)
	}

	if err := config.EnsureFile(configFile); err != nil {
		return err
	}

	c, err := editor.Cmd("alouette-tts", configFile)
	if err != nil {
		return fmt.Errorf("unable to set config file: %w", err)
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("unable to run command: %w", err)
	}

	fmt.Println("Wrote config file to:", configFile)
	return nil
}
