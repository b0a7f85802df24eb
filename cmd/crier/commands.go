package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	crier "github.com/matthewjhunter/crier"
	"github.com/matthewjhunter/crier/internal/config"
	"github.com/matthewjhunter/crier/internal/scheduler"
)

func generateCmd() *cobra.Command {
	var (
		platformName string
		contentType  string
		hints        []string
		at           string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one post and queue it as pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := crier.GenerateRequest{Platform: platformName, ContentType: contentType}
			if len(hints) > 0 {
				req.Context = make(map[string]string, len(hints))
				for _, h := range hints {
					k, v, ok := strings.Cut(h, "=")
					if !ok {
						return fmt.Errorf("context hint %q must be key=value", h)
					}
					req.Context[k] = v
				}
			}
			if at != "" {
				when, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				req.ScheduledFor = &when
			}
			return withEngine(func(e *crier.Engine) error {
				item, err := e.Generate(cmd.Context(), tenantID, req)
				if err != nil {
					return err
				}
				return formatter.OutputGenerated(item)
			})
		},
	}
	cmd.Flags().StringVarP(&platformName, "platform", "p", "", "destination platform (required)")
	cmd.Flags().StringVar(&contentType, "type", "promotional", "promotional, educational, engagement or announcement")
	cmd.Flags().StringArrayVar(&hints, "context", nil, "generation hint as key=value (repeatable)")
	cmd.Flags().StringVar(&at, "at", "", "schedule for this RFC 3339 time")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

func postCmd() *cobra.Command {
	var (
		platformName string
		queueID      int64
	)
	cmd := &cobra.Command{
		Use:   "post [text]",
		Short: "Publish a queue item or raw text now, bypassing approval",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := crier.PostRequest{QueueID: queueID, Platform: platformName}
			if len(args) == 1 {
				req.Text = args[0]
			}
			return withEngine(func(e *crier.Engine) error {
				res, err := e.Post(cmd.Context(), tenantID, req)
				if err != nil {
					return err
				}
				if res.Outcome != scheduler.OutcomePosted {
					return fmt.Errorf("publish failed (%s): %s", res.Category, res.Error)
				}
				formatter.Success("Posted to %s as %s", res.Posted.Platform, res.Posted.PlatformPostID)
				if outputFormat == "json" {
					return formatter.OutputValue(res)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&platformName, "platform", "p", "", "destination platform for raw text")
	cmd.Flags().Int64Var(&queueID, "id", 0, "queue item to publish")
	return cmd
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the content queue",
	}

	var (
		status string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List queue items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				items, err := e.ListQueue(cmd.Context(), tenantID, crier.QueueStatus(status), limit, 0)
				if err != nil {
					return err
				}
				return formatter.OutputQueue(items)
			})
		},
	}
	list.Flags().StringVarP(&status, "status", "s", "", "pending, approved, posted or failed")
	list.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of items")

	var platformName string
	add := &cobra.Command{
		Use:   "add <text>",
		Short: "Queue your own text as a pending item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				item, err := e.Enqueue(cmd.Context(), tenantID, crier.EnqueueRequest{Platform: platformName, Text: args[0]})
				if err != nil {
					return err
				}
				return formatter.OutputGenerated(item)
			})
		},
	}
	add.Flags().StringVarP(&platformName, "platform", "p", "", "destination platform")
	_ = add.MarkFlagRequired("platform")

	cmd.AddCommand(list, add,
		idCmd("approve", "Approve a pending item", func(e *crier.Engine, c *cobra.Command, id int64) error {
			if err := e.Approve(c.Context(), tenantID, id); err != nil {
				return err
			}
			formatter.Success("Approved #%d", id)
			return nil
		}),
		idCmd("delete", "Delete an item", func(e *crier.Engine, c *cobra.Command, id int64) error {
			if err := e.DeleteQueueItem(c.Context(), tenantID, id); err != nil {
				return err
			}
			formatter.Success("Deleted #%d", id)
			return nil
		}),
		idCmd("requeue", "Copy a failed item into a new pending item", func(e *crier.Engine, c *cobra.Command, id int64) error {
			item, err := e.Requeue(c.Context(), tenantID, id)
			if err != nil {
				return err
			}
			return formatter.OutputGenerated(item)
		}),
	)
	return cmd
}

// idCmd builds a subcommand taking a single numeric id.
func idCmd(use, short string, fn func(e *crier.Engine, c *cobra.Command, id int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(func(e *crier.Engine) error { return fn(e, cmd, id) })
		},
	}
}

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the facts generation is grounded on",
	}

	var activeOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List knowledge entries (seeds defaults on first use)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				entries, err := e.ListKnowledge(cmd.Context(), tenantID, activeOnly)
				if err != nil {
					return err
				}
				return formatter.OutputKnowledge(entries)
			})
		},
	}
	list.Flags().BoolVar(&activeOnly, "active", false, "only active entries")

	importFile := &cobra.Command{
		Use:   "import <file>",
		Short: "Import entries from a JSON, YAML or TOML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				n, err := e.ImportKnowledgeFile(cmd.Context(), tenantID, args[0])
				if err != nil {
					return err
				}
				formatter.Success("Imported %d entries from %s", n, filepath.Base(args[0]))
				return nil
			})
		},
	}

	var (
		category string
		limit    int
	)
	importFeed := &cobra.Command{
		Use:   "import-feed <url>",
		Short: "Import the latest items of an RSS or Atom feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				n, err := e.ImportKnowledgeFeed(cmd.Context(), tenantID, args[0], category, limit)
				if err != nil {
					return err
				}
				formatter.Success("Imported %d entries from %s", n, args[0])
				return nil
			})
		},
	}
	importOPML := &cobra.Command{
		Use:   "import-opml <file>",
		Short: "Import every feed listed in an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				n, errs := e.ImportKnowledgeOPML(cmd.Context(), tenantID, args[0], category, limit)
				for _, err := range errs {
					formatter.Warning("%v", err)
				}
				formatter.Success("Imported %d entries", n)
				if n == 0 && len(errs) > 0 {
					return errors.New("no feeds could be imported")
				}
				return nil
			})
		},
	}
	for _, c := range []*cobra.Command{importFeed, importOPML} {
		c.Flags().StringVar(&category, "category", "news", "category for imported entries")
		c.Flags().IntVarP(&limit, "limit", "n", 10, "items per feed")
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete all entries and reseed the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				n, err := e.ResetKnowledge(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				formatter.Success("Knowledge reset to %d default entries", n)
				return nil
			})
		},
	}

	cmd.AddCommand(list, importFile, importFeed, importOPML, reset,
		idCmd("delete", "Delete an entry", func(e *crier.Engine, c *cobra.Command, id int64) error {
			if err := e.DeleteKnowledge(c.Context(), tenantID, id); err != nil {
				return err
			}
			formatter.Success("Deleted entry #%d", id)
			return nil
		}),
	)
	return cmd
}

func platformsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platforms",
		Short: "Manage platform credentials",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List connected platforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				creds, err := e.ListPlatforms(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				return formatter.OutputValue(map[string]any{
					"connected": creds,
					"supported": e.SupportedPlatforms(),
				})
			})
		},
	}

	var req crier.ConnectRequest
	connect := &cobra.Command{
		Use:   "connect <platform>",
		Short: "Store an access token for a platform (token from --token or CRIER_PLATFORM_TOKEN)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Platform = args[0]
			if req.AccessToken == "" {
				req.AccessToken = os.Getenv("CRIER_PLATFORM_TOKEN")
			}
			return withEngine(func(e *crier.Engine) error {
				cred, err := e.ConnectPlatform(cmd.Context(), tenantID, req)
				if err != nil {
					return err
				}
				formatter.Success("Connected %s (enabled=%t)", cred.Platform, cred.Enabled)
				return nil
			})
		},
	}
	connect.Flags().StringVar(&req.AccessToken, "token", "", "access token")
	connect.Flags().StringVar(&req.RefreshToken, "refresh-token", "", "refresh token")
	connect.Flags().StringVar(&req.ExternalUserID, "user", "", "account id on the platform")
	connect.Flags().BoolVar(&req.Disabled, "disabled", false, "store the credential without enabling it")

	toggle := func(use string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <platform>",
			Short: use + " publishing to a connected platform",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(func(e *crier.Engine) error {
					if err := e.SetPlatformEnabled(cmd.Context(), tenantID, args[0], enabled); err != nil {
						return err
					}
					formatter.Success("%s: enabled=%t", args[0], enabled)
					return nil
				})
			},
		}
	}

	disconnect := &cobra.Command{
		Use:   "disconnect <platform>",
		Short: "Delete a platform credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				if err := e.DisconnectPlatform(cmd.Context(), tenantID, args[0]); err != nil {
					return err
				}
				formatter.Success("Disconnected %s", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, connect, toggle("enable", true), toggle("disable", false), disconnect)
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the tenant's autonomy config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				ac, err := e.GetAutonomyConfig(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				return formatter.OutputValue(ac)
			})
		},
	}

	var (
		enable    bool
		disable   bool
		frequency string
		maxPosts  int
		types     []string
		tone      string
		topics    []string
		blacklist []string
		approval  string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Update the tenant's autonomy config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				ac, err := e.GetAutonomyConfig(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				flags := cmd.Flags()
				switch {
				case enable && disable:
					return errors.New("--enable and --disable are exclusive")
				case enable:
					ac.Enabled = true
				case disable:
					ac.Enabled = false
				}
				if flags.Changed("frequency") {
					ac.PostingFrequency = frequency
				}
				if flags.Changed("max-per-day") {
					ac.MaxPostsPerDay = maxPosts
				}
				if flags.Changed("types") {
					ac.AllowedContentTypes = types
				}
				if flags.Changed("tone") {
					ac.Tone = tone
				}
				if flags.Changed("topics") {
					ac.Topics = topics
				}
				if flags.Changed("blacklist") {
					ac.BlacklistWords = blacklist
				}
				switch approval {
				case "":
				case "on":
					ac.RequireApproval = true
				case "off":
					ac.RequireApproval = false
				default:
					return fmt.Errorf("--approval must be on or off, got %q", approval)
				}
				updated, err := e.UpdateAutonomyConfig(cmd.Context(), *ac)
				if err != nil {
					return err
				}
				return formatter.OutputValue(updated)
			})
		},
	}
	set.Flags().BoolVar(&enable, "enable", false, "enable autonomous posting")
	set.Flags().BoolVar(&disable, "disable", false, "disable autonomous posting")
	set.Flags().StringVar(&frequency, "frequency", "", "hourly, every_4_hours, twice_daily or daily")
	set.Flags().IntVar(&maxPosts, "max-per-day", 0, "daily post cap")
	set.Flags().StringSliceVar(&types, "types", nil, "allowed content types")
	set.Flags().StringVar(&tone, "tone", "", "voice for generated posts")
	set.Flags().StringSliceVar(&topics, "topics", nil, "topics to favour")
	set.Flags().StringSliceVar(&blacklist, "blacklist", nil, "words generated posts must not contain")
	set.Flags().StringVar(&approval, "approval", "", "require approval: on or off")

	initCfg := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir := filepath.Dir(configPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create config directory: %w", err)
				}
			}
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}
			if err := config.Default().Save(configPath); err != nil {
				return err
			}
			formatter.Success("Created default config at %s", configPath)
			return nil
		},
	}

	cmd.AddCommand(show, set, initCfg)
	return cmd
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show queue, posting and engagement totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				d, err := e.Dashboard(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				return formatter.OutputDashboard(d)
			})
		},
	}
}

func performanceCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Show top posts and engagement by content type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				rep, err := e.Performance(cmd.Context(), tenantID, limit)
				if err != nil {
					return err
				}
				return formatter.OutputValue(rep)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of top posts")
	return cmd
}

func logsCmd() *cobra.Command {
	var (
		limit  int
		posted bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the audit log, or posted content with --posted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				if posted {
					posts, err := e.ListPosted(cmd.Context(), tenantID, limit, 0)
					if err != nil {
						return err
					}
					return formatter.OutputPosted(posts)
				}
				entries, err := e.ListLogs(cmd.Context(), tenantID, limit, 0)
				if err != nil {
					return err
				}
				return formatter.OutputLogs(entries)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of entries")
	cmd.Flags().BoolVar(&posted, "posted", false, "list posted content instead")
	return cmd
}
