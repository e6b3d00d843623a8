package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/publish"
)

var (
	redisAddr string
	redisKey  string
	wakeUp    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read the link, DPLL and pipe status",
	Long: `Sample the status registers of the current source link and print them decoded.
With --wake the final bring-up step is run first (wake-up cycles, CSI output and clock
forcing on). With --redis the snapshot is also stored in a redis hash.

Examples:
  gmsl status
  gmsl status --wake --redis localhost:6379 --key gmsl-cam0`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&redisAddr, "redis", "", "publish the status to the redis server at host:port")
	statusCmd.Flags().StringVar(&redisKey, "key", publish.DefaultKey, "redis hash to write")
	statusCmd.Flags().BoolVar(&wakeUp, "wake", false, "enable the CSI output before sampling")
}

func runStatus(cmd *cobra.Command, args []string) error {
	b, err := openBoard(nil)
	if err != nil {
		return err
	}
	defer b.Close()

	st := b.dev.Status()
	if wakeUp {
		if st, err = b.dev.CheckStatus(); err != nil {
			reportSteps("wake-up", err)
			return fmt.Errorf("wake-up failed: %w", err)
		}
	}

	fmt.Printf("Link %s -> %s x%d\n", st.Link, st.Port, st.Lanes)
	fmt.Printf("  Link state: %s locked=%t\n", st.State, st.State.Locked())
	fmt.Printf("  DPLL:       %s\n", st.DPLL)
	fmt.Printf("  Video:      %s\n", st.Video)
	fmt.Printf("  DE detect:  %s\n", st.DE)
	fmt.Printf("  HS detect:  %s\n", st.HS)
	fmt.Printf("  VS detect:  %s\n", st.VS)
	if st.ReadErr != nil {
		fmt.Printf("  Incomplete: %v\n", st.ReadErr)
	}

	if redisAddr == "" {
		return nil
	}
	pub, err := publish.Dial(redisAddr, redisKey, log.WithName("publish"))
	if err != nil {
		return err
	}
	defer pub.Close()
	if err := pub.Publish(b.dev.Snapshot(), st); err != nil {
		return err
	}
	fmt.Printf("Published to %s hash %q\n", redisAddr, pub.Key())
	return nil
}
