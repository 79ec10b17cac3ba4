/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/slidify/internal/clock"
	"github.com/friendsincode/slidify/internal/playback"
)

var (
	presentSimulate bool
	presentMode     string
)

var presentCmd = &cobra.Command{
	Use:   "present <slideshow-id>",
	Short: "Play a slideshow in the terminal",
	Long: `Play a slideshow and print each slide change.

With --simulate the timeline runs on a virtual clock and finishes instantly,
and no view is recorded. Without it the slideshow plays in real time until
the cycle ends or the command is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runPresent,
}

func init() {
	presentCmd.Flags().BoolVar(&presentSimulate, "simulate", false, "Run on a virtual clock without recording a view")
	presentCmd.Flags().StringVar(&presentMode, "mode", string(playback.ModePresentation), "Playback mode: presentation, embedded or preview")
	rootCmd.AddCommand(presentCmd)
}

func runPresent(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	mode, err := parseMode(presentMode)
	if err != nil {
		return err
	}

	gw, closeGW, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGW()

	p := &presenter{out: cmd.OutOrStdout()}
	opts := playback.Options{
		Mode:    mode,
		BaseURL: cfg.PublicBaseURL,
		Logger:  logger,
	}
	if !presentSimulate {
		opts.Views = gw
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if presentSimulate {
		return p.simulate(ctx, gw, args[0], opts)
	}
	return p.play(ctx, gw, args[0], opts)
}

func parseMode(s string) (playback.Mode, error) {
	switch m := playback.Mode(s); m {
	case playback.ModePresentation, playback.ModeEmbedded, playback.ModePreview:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// presenter prints engine callbacks with the elapsed playback time.
type presenter struct {
	out   io.Writer
	now   func() time.Time
	start time.Time

	mu    sync.Mutex
	ended chan playback.EndedEvent
}

func (p *presenter) attach(opts *playback.Options, now func() time.Time) {
	p.now = now
	p.start = now()
	p.ended = make(chan playback.EndedEvent, 1)
	opts.OnChange = p.onChange
	opts.OnEnded = func(ev playback.EndedEvent) {
		select {
		case p.ended <- ev:
		default:
		}
	}
}

func (p *presenter) onChange(s playback.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := p.now().Sub(p.start).Round(100 * time.Millisecond)
	switch {
	case s.State == playback.StateError:
		fmt.Fprintf(p.out, "%8s  error    %s\n", elapsed, s.Error)
	case s.Count == 0:
		fmt.Fprintf(p.out, "%8s  %-8s no slides\n", elapsed, s.State)
	default:
		image := s.Image
		if s.Placeholder {
			image = "(placeholder)"
		}
		fmt.Fprintf(p.out, "%8s  %-8s %d/%d %s %s\n", elapsed, s.State, s.Index+1, s.Count, s.Transition.Name, image)
	}
}

func (p *presenter) finish(ev playback.EndedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := ev.Name
	if name == "" {
		name = "Untitled"
	}
	fmt.Fprintf(p.out, "ended: %s\n", name)
	if ev.Message != "" {
		fmt.Fprintf(p.out, "  %s\n", ev.Message)
	}
	fmt.Fprintf(p.out, "share: %s\n", ev.Link)
}

// simulate drives the engine on a manual clock until the cycle ends.
func (p *presenter) simulate(ctx context.Context, loader playback.Loader, id string, opts playback.Options) error {
	clk := clock.NewManual(time.Unix(0, 0))
	opts.Scheduler = clk
	p.attach(&opts, clk.Now)
	audio := &playback.LogAudio{Logger: opts.Logger}
	opts.Audio = audio

	engine := playback.Load(ctx, loader, id, opts)
	defer engine.Close()
	audio.URL = engine.Slideshow().AudioURL
	if err := p.begin(engine); err != nil {
		return err
	}

	for {
		select {
		case ev := <-p.ended:
			p.finish(ev)
			return nil
		default:
		}
		d, ok := clk.NextDeadline()
		if !ok {
			return errors.New("playback stalled before the end of the cycle")
		}
		clk.Advance(d)
	}
}

// play runs in real time until the cycle ends, ctx is done or a signal arrives.
func (p *presenter) play(ctx context.Context, loader playback.Loader, id string, opts playback.Options) error {
	p.attach(&opts, time.Now)
	audio := &playback.LogAudio{Logger: opts.Logger}
	opts.Audio = audio

	engine := playback.Load(ctx, loader, id, opts)
	defer engine.Close()
	audio.URL = engine.Slideshow().AudioURL
	if err := p.begin(engine); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case ev := <-p.ended:
		p.finish(ev)
	case <-quit:
		fmt.Fprintln(p.out, "interrupted")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (p *presenter) begin(engine *playback.Engine) error {
	snap := engine.Snapshot()
	if snap.State == playback.StateError {
		p.onChange(snap)
		return errors.New(snap.Error)
	}
	if err := engine.Start(); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}
	return nil
}
