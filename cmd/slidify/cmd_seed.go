/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/slidify/internal/db"
	"github.com/friendsincode/slidify/internal/gateway"
	"github.com/friendsincode/slidify/internal/media"
	"github.com/friendsincode/slidify/internal/models"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load the music library, taglines and share messages",
	Long: `Load catalogue content from a YAML file.

Tracks with a file entry are uploaded to the audio bucket; tracks with a url
are referenced as is. Rows whose title or text already exist are skipped, so
the command can be re-run after editing the file.

Example:

  music:
    - title: Summer Breeze
      file: audio/summer-breeze.mp3
      duration: 142
      tier: public
  taglines:
    - text: Slides in seconds
  share_messages:
    - platform: whatsapp
      text: Look what I made
`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type seedFile struct {
	Music         []seedTrack          `yaml:"music"`
	Taglines      []seedTagline        `yaml:"taglines"`
	ShareMessages []models.ShareMessage `yaml:"share_messages"`
}

type seedTrack struct {
	Title    string  `yaml:"title"`
	URL      string  `yaml:"url"`
	File     string  `yaml:"file"`
	Duration float64 `yaml:"duration"`
	Tier     string  `yaml:"tier"`
}

type seedTagline struct {
	Text   string `yaml:"text"`
	Active *bool  `yaml:"active"`
}

type seedResult struct {
	Music, Taglines, ShareMessages, Skipped int
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	seed, err := readSeed(args[0])
	if err != nil {
		return err
	}

	gw, closeGW, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGW()

	if err := db.Migrate(gw.DB()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	res, err := applySeed(cmd.Context(), gw, seed, filepath.Dir(args[0]))
	if err != nil {
		return err
	}
	logger.Info().
		Int("music", res.Music).
		Int("taglines", res.Taglines).
		Int("share_messages", res.ShareMessages).
		Int("skipped", res.Skipped).
		Msg("seed applied")
	return nil
}

func readSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// applySeed inserts the seed rows. Relative track files resolve against baseDir.
func applySeed(ctx context.Context, gw *gateway.Gateway, seed *seedFile, baseDir string) (seedResult, error) {
	var res seedResult

	existing, err := gw.ListMusic(ctx)
	if err != nil {
		return res, err
	}
	titles := make(map[string]bool, len(existing))
	for _, t := range existing {
		titles[strings.ToLower(t.Title)] = true
	}

	for _, st := range seed.Music {
		if titles[strings.ToLower(st.Title)] {
			res.Skipped++
			continue
		}
		track := &models.MusicTrack{
			ID:       uuid.NewString(),
			Title:    strings.TrimSpace(st.Title),
			URL:      st.URL,
			Duration: st.Duration,
			Tier:     models.MusicTier(strings.ToLower(st.Tier)),
		}
		if track.Tier == "" {
			track.Tier = models.MusicTierPublic
		}
		if track.Tier == models.MusicTierPrivate {
			return res, fmt.Errorf("track %q: private tracks belong to a user and cannot be seeded", st.Title)
		}
		if st.File != "" {
			url, err := uploadTrack(ctx, gw, track.ID, resolvePath(baseDir, st.File))
			if err != nil {
				return res, fmt.Errorf("track %q: %w", st.Title, err)
			}
			track.URL = url
		}
		if err := gw.CreateMusic(ctx, track); err != nil {
			return res, fmt.Errorf("track %q: %w", st.Title, err)
		}
		titles[strings.ToLower(track.Title)] = true
		res.Music++
	}

	for _, sl := range seed.Taglines {
		text := strings.TrimSpace(sl.Text)
		if exists, err := rowExists(ctx, gw, &models.Tagline{}, text); err != nil {
			return res, err
		} else if exists || text == "" {
			res.Skipped++
			continue
		}
		line := &models.Tagline{Text: text, Active: true}
		if err := gw.CreateTagline(ctx, line); err != nil {
			return res, fmt.Errorf("tagline %q: %w", text, err)
		}
		// The column defaults to true, so a false value is written separately.
		if sl.Active != nil && !*sl.Active {
			if err := gw.DB().WithContext(ctx).Model(line).Update("active", false).Error; err != nil {
				return res, fmt.Errorf("tagline %q: %w", text, err)
			}
		}
		res.Taglines++
	}

	for _, sm := range seed.ShareMessages {
		text := strings.TrimSpace(sm.Text)
		if exists, err := rowExists(ctx, gw, &models.ShareMessage{}, text); err != nil {
			return res, err
		} else if exists {
			res.Skipped++
			continue
		}
		msg := &models.ShareMessage{Platform: strings.ToLower(strings.TrimSpace(sm.Platform)), Text: text}
		if err := gw.CreateShareMessage(ctx, msg); err != nil {
			return res, fmt.Errorf("share message %q: %w", text, err)
		}
		res.ShareMessages++
	}
	return res, nil
}

func uploadTrack(ctx context.Context, gw *gateway.Gateway, id, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	key := "library/" + id + strings.ToLower(filepath.Ext(path))
	if err := gw.Upload(ctx, media.BucketAudio, key, data); err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	return gw.PublicURL(media.BucketAudio, key), nil
}

func rowExists(ctx context.Context, gw *gateway.Gateway, model any, text string) (bool, error) {
	var n int64
	if err := gw.DB().WithContext(ctx).Model(model).Where("text = ?", text).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check existing rows: %w", err)
	}
	return n > 0, nil
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
