package layout

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/fragring/internal/conf"
	"github.com/tphakala/fragring/internal/jitter"
	"github.com/tphakala/fragring/internal/ringbuf"
)

// Command creates the layout command.
func Command(settings *conf.Settings) *cobra.Command {
	var forJitter bool

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the chunk layout of a ring buffer",
		Long: "Print how a ring of buffer.capacity_bytes splits into chunks of buffer.chunk_size_hint. " +
			"With --jitter the capacity is derived from the frame and jitter settings instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), settings, forJitter)
		},
	}

	if err := setupFlags(cmd, &forJitter); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command, forJitter *bool) error {
	defaults := conf.Defaults()

	cmd.Flags().Int("capacity", defaults.Buffer.CapacityBytes, "Ring capacity in bytes")
	cmd.Flags().Int("hint", defaults.Buffer.ChunkSizeHint, "Chunk size hint in bytes")
	cmd.Flags().BoolVar(forJitter, "jitter", false, "Size the ring as a jitter buffer")

	if err := viper.BindPFlag("buffer.capacity_bytes", cmd.Flags().Lookup("capacity")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("buffer.chunk_size_hint", cmd.Flags().Lookup("hint")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

func run(out io.Writer, settings *conf.Settings, forJitter bool) error {
	capacity, hint := settings.Buffer.CapacityBytes, settings.Buffer.ChunkSizeHint
	if forJitter {
		jc, err := jitter.ConfigFromSettings("layout", settings)
		if err != nil {
			return err
		}
		capacity = jc.Capacity()
		if jc.ChunkSizeHint == 0 {
			hint = jc.FrameSize
		}
		fmt.Fprintf(out, "jitter buffer: frame %d bytes, thresholds [%d, %d]\n",
			jc.FrameSize, jc.FrameSize, jc.FrameSize+2*jc.JitterBytes())
	}

	sizes := ringbuf.Layout(capacity, hint)
	if sizes == nil {
		return fmt.Errorf("no layout for capacity %d with hint %d", capacity, hint)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "chunk\tbytes\toffset\t")
	offset := 0
	for i, size := range sizes {
		fmt.Fprintf(tw, "%d\t%d\t%d\t\n", i, size, offset)
		offset += size
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d bytes in %d chunks\n", capacity, len(sizes))
	return err
}
