package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/openmined/dirsync/internal/fileops"
	"github.com/openmined/dirsync/internal/fsentry"
	"github.com/openmined/dirsync/internal/orchestrator"
	"github.com/openmined/dirsync/internal/utils"
	"github.com/spf13/cobra"
)

// withSession opens a session for the duration of fn and reports the
// messages fn produced.
func (c *cli) withSession(cmd *cobra.Command, opts []orchestrator.Option, fn func(s *session) error) error {
	cmd.SilenceUsage = true

	s, err := c.openSession(cmd.Context(), cmd.OutOrStdout(), opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(s); err != nil {
		s.settle()
		return err
	}
	return s.settle()
}

func newTrackCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "track <dir>...",
		Short: "Snapshot directories and start tracking them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				for _, arg := range args {
					e, err := s.entry(arg)
					if err != nil {
						return err
					}
					if !e.IsDirectory {
						return fmt.Errorf("%s: %w", e.Path, orchestrator.ErrNotDirectory)
					}
					if err := s.orch.TrackNewDir(e.Path); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newUntrackCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "untrack <dir>...",
		Short: "Stop tracking directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				for _, arg := range args {
					// the directory may already be gone from disk
					if err := s.orch.RemoveTrackedDir(absOrSelf(arg)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newTrackedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tracked",
		Short: "List tracked directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				out := cmd.OutOrStdout()
				for _, dir := range s.orch.TrackedDirs().Get() {
					snaps, _ := s.store.GetSnapshots(dir)
					fmt.Fprintf(out, "%s %s\n", cyan.Render(dir), gray.Render(humanize.Comma(int64(len(snaps)))+" files"))
				}
				return nil
			})
		},
	}
}

func newLsCmd(c *cli) *cobra.Command {
	var (
		hideHidden bool
		fileType   string
	)

	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List a directory, or every tracked directory when none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				if len(args) == 1 {
					if err := s.cd(args[0]); err != nil {
						return err
					}
				}
				if hideHidden {
					if err := s.orch.ToggleHiddenFiles(); err != nil {
						return err
					}
				}
				if fileType != "" {
					ft, err := fsentry.ParseFileType(fileType)
					if err != nil {
						return err
					}
					if err := s.orch.SelectFileFilter(&ft); err != nil {
						return err
					}
				}
				s.orch.Wait()
				return printEntries(cmd.OutOrStdout(), s.orch.FilteredFiles().Get(), len(args) == 0)
			})
		},
	}

	cmd.Flags().BoolVarP(&hideHidden, "hide-hidden", "H", false, "hide dot files")
	cmd.Flags().StringVarP(&fileType, "type", "t", "", "only show files of this type (e.g. text, image, folder)")
	return cmd
}

func newSearchCmd(c *cli) *cobra.Command {
	var ignoreHidden bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find files by name below every tracked directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				if err := s.orch.Search(args[0], ignoreHidden); err != nil {
					return err
				}
				s.orch.Wait()
				return printEntries(cmd.OutOrStdout(), s.orch.Files().Get(), true)
			})
		},
	}

	cmd.Flags().BoolVar(&ignoreHidden, "ignore-hidden", false, "skip dot files and dot directories")
	return cmd
}

func newResyncCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Re-snapshot tracked directories and report what changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				return s.orch.ResyncAll()
			})
		},
	}
}

// newCopyCmd builds "cp", or "mv" when cut is set.
func newCopyCmd(c *cli, cut bool) *cobra.Command {
	var noClobber bool

	use, short, action := "cp", "Copy files into a directory", fileops.ActionCopy
	if cut {
		use, short, action = "mv", "Move files into a directory", fileops.ActionCut
	}

	cmd := &cobra.Command{
		Use:   use + " <src>... <dest-dir>",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []orchestrator.Option{orchestrator.WithPasteOverwrite(!noClobber)}
			return c.withSession(cmd, opts, func(s *session) error {
				files, err := s.entries(args[:len(args)-1])
				if err != nil {
					return err
				}
				if err := s.cd(args[len(args)-1]); err != nil {
					return err
				}
				if err := s.orch.CopyOrCut(files, action); err != nil {
					return err
				}
				return s.orch.Paste()
			})
		},
	}

	cmd.Flags().BoolVarP(&noClobber, "no-clobber", "n", false, "do not overwrite existing files")
	return cmd
}

func newRmCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete files and directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				files, err := s.entries(args)
				if err != nil {
					return err
				}
				return s.orch.Delete(files)
			})
		},
	}
}

func newRenameCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				file, err := s.entry(args[0])
				if err != nil {
					return err
				}
				return s.orch.Rename(file, args[1])
			})
		},
	}
}

func newCreateCmd(c *cli) *cobra.Command {
	var folder bool

	cmd := &cobra.Command{
		Use:   "create <dir>",
		Short: `Create "New File" or "New Folder" in a directory`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				if err := s.cd(args[0]); err != nil {
					return err
				}
				return s.orch.CreateNewFile(folder)
			})
		},
	}

	cmd.Flags().BoolVarP(&folder, "folder", "f", false, "create a folder instead of a file")
	return cmd
}

func newOpenCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Open a file with the system default application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				file, err := s.entry(args[0])
				if err != nil {
					return err
				}
				return s.orch.Open(file)
			})
		},
	}
}

func absOrSelf(p string) string {
	if abs, err := utils.ResolvePath(p); err == nil {
		return abs
	}
	return p
}
