package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regscript"
)

var scriptCmd = &cobra.Command{
	Use:   "script <file>...",
	Short: "Replay register scripts",
	Long: `Execute register scripts against the deserializer. Every statement runs even
when an earlier one fails; all failures are reported at the end.

Script syntax:
  write 0x0018 0x0F              # write a register
  update 0x040B mask 0x02 0x00   # read-modify-write
  read 0x000D                    # print a register
  expect 0x000D 0xA2             # compare (optionally "mask 0xF0")
  sleep 100ms

Examples:
  gmsl script init.regs
  gmsl script --config boards/ --profile usb-bridge errata.regs`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(scriptCmd)
}

func runScript(cmd *cobra.Command, args []string) error {
	parser, err := regscript.NewParser()
	if err != nil {
		return err
	}
	var scripts []*regscript.Script
	for _, path := range args {
		s, err := parser.ParseFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		scripts = append(scripts, s)
	}

	b, err := openBoard(nil)
	if err != nil {
		return err
	}
	defer b.Close()

	runner := regscript.NewRunner(b.port,
		regscript.WithSleep(b.sleep),
		regscript.WithLogger(log.WithName("regscript")))

	failed := false
	for i, s := range scripts {
		results, err := runner.Run(context.Background(), s)
		for _, r := range results {
			fmt.Printf("%s:%d: 0x%04X = 0x%02X\n", args[i], r.Line, r.Addr, r.Value)
		}
		if err != nil {
			failed = true
			reportSteps(args[i], err)
			continue
		}
		fmt.Printf("%s: %d statement(s) ok\n", args[i], len(s.Stmts))
	}
	if failed {
		return fmt.Errorf("script execution failed")
	}
	return nil
}
