package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskboard/internal/auth"
	"taskboard/internal/board"
	"taskboard/internal/cache"
	"taskboard/internal/config"
	"taskboard/internal/database"
	"taskboard/internal/gateway"
	"taskboard/internal/models"
	"taskboard/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the task API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger := cfg.NewLogger()

			pool, err := database.NewDatabasePool(&database.PoolConfig{
				Driver:          cfg.Database.Driver,
				DSN:             cfg.GetDatabaseDSN(),
				MaxOpenConns:    cfg.Database.MaxOpenConns,
				MaxIdleConns:    cfg.Database.MaxIdleConns,
				ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
				ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
				LogLevel:        database.DefaultPoolConfig().LogLevel,
				Logger:          logger,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pool.Migrate(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, pool.DB, logger).Run(ctx)
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		teams  []string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token for the task API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.AccessTokenTTL
			}
			token, err := auth.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, userID, ttl, teams...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id to put in the token")
	cmd.Flags().StringSliceVar(&teams, "team", nil, "Team the user belongs to (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to ACCESS_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// boardFlags are shared by every command that works on a loaded board.
type boardFlags struct {
	team     string
	date     string
	assignee string
	status   string
}

func (f *boardFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.team, "team", "", "Team id (default: personal board)")
	cmd.Flags().StringVar(&f.date, "date", "", "Show only tasks whose due date starts with this (YYYY, YYYY-MM or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "Show only tasks with this assignee")
	cmd.Flags().StringVar(&f.status, "status", "", "Show only tasks with this status")
}

func (f *boardFlags) teamID() *string {
	if f.team == "" {
		return nil
	}
	team := f.team
	return &team
}

func (f *boardFlags) filter() board.FilterSpec {
	return board.FilterSpec{Date: f.date, Assignee: f.assignee, Status: f.status}
}

// session is one signed-in client: a gateway and the controller over it.
type session struct {
	ctrl   *board.Controller
	logger *log.Logger
	cached *gateway.CachedGateway
	closer io.Closer
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())

	tokens := auth.NewTokenSource(cfg.Client.Token)
	var gw gateway.Gateway = gateway.NewHTTPGateway(gateway.HTTPConfig{
		BaseURL:           cfg.Client.BaseURL,
		Timeout:           cfg.Client.Timeout,
		RequestsPerSecond: cfg.Client.RequestsPerSecond,
		Burst:             cfg.Client.Burst,
	}, tokens, logger)

	s := &session{logger: logger}
	if cfg.Redis.Enabled {
		// List entries are not keyed by user, so each user gets a prefix.
		prefix := cfg.Redis.KeyPrefix
		if userID, ok := auth.UserIDOf(cfg.Client.Token); ok {
			prefix += ":" + userID
		}
		rc := cache.NewRedisCache(&cache.CacheConfig{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    prefix,
		})
		s.cached = gateway.NewCachedGateway(gw, rc, gateway.CachedOptions{
			TTL: cfg.Redis.ListTTL,
			Breaker: &cache.CircuitBreakerConfig{
				MaxFailures:      cfg.CircuitBreaker.MaxFailures,
				Timeout:          cfg.CircuitBreaker.Timeout,
				HalfOpenMaxCalls: cfg.CircuitBreaker.HalfOpenMaxCalls,
			},
			Logger: logger,
		})
		s.closer = rc
		gw = s.cached
	}

	stderr := cmd.ErrOrStderr()
	s.ctrl = board.NewController(board.NewStore(), gw, board.Options{
		Logger: logger,
		OnSessionExpired: func() {
			fmt.Fprintln(stderr, gateway.SessionExpiredMessage)
		},
	})
	return s, nil
}

func (s *session) Close() {
	s.ctrl.Wait()
	if s.cached != nil {
		s.logger.WithField("cache", s.cached.Metrics()).Debug("board.cache.stats")
	}
	if s.closer != nil {
		s.closer.Close()
	}
}

// load refreshes the board and applies the filter. A failed refresh is
// returned with the message the board would display.
func (s *session) load(ctx context.Context, flags *boardFlags) error {
	s.ctrl.SetFilter(flags.filter())
	if err := s.ctrl.Refresh(ctx, flags.teamID()).Wait(); err != nil {
		return errors.New(gateway.Message(err))
	}
	return nil
}

func boardCmd() *cobra.Command {
	var (
		flags    boardFlags
		prefetch []string
	)

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the task board",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.cached != nil && len(prefetch) > 0 {
				jobs := []gateway.WarmupJob{{TeamID: flags.teamID(), Priority: 1}}
				for _, team := range prefetch {
					jobs = append(jobs, gateway.WarmupJob{TeamID: &team})
				}
				if err := gateway.NewCacheWarmer(s.cached, gateway.WarmupStrategy{}).Warm(cmd.Context(), jobs); err != nil {
					return errors.New(gateway.Message(err))
				}
			}

			if err := s.load(cmd.Context(), &flags); err != nil {
				return err
			}
			printBoard(cmd.OutOrStdout(), s.ctrl.View())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVar(&prefetch, "prefetch", nil, "Team boards to load into the list cache (needs REDIS_ENABLED)")
	return cmd
}

func createCmd() *cobra.Command {
	var (
		in       models.NewTask
		team     string
		status   string
		priority string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			in.Status = models.Status(status)
			in.Priority = models.Priority(priority)
			if team != "" {
				in.TeamID = &team
			}

			op, err := s.ctrl.Create(cmd.Context(), in)
			var verrs models.ValidationErrors
			if errors.As(err, &verrs) {
				return errors.New(verrs.Summary())
			}
			if err != nil {
				return err
			}
			if err := op.Wait(); err != nil {
				return errors.New(gateway.Message(err))
			}

			if created, ok := op.Task(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s in %s\n", created.ID, created.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Title, "title", "", "Task title")
	cmd.Flags().StringVar(&in.Description, "description", "", "Task description")
	cmd.Flags().StringVar(&status, "status", string(models.StatusTodo), "Initial column")
	cmd.Flags().StringVar(&priority, "priority", string(models.PriorityNormal), "normal, medium or high")
	cmd.Flags().StringVar(&in.DueDate, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.Assignee, "assignee", "", "Assignee")
	cmd.Flags().StringSliceVar(&in.AssigneeIDs, "assignee-ids", nil, "Assignee ids")
	cmd.Flags().StringVar(&team, "team", "", "Create on this team's board")
	return cmd
}

func moveCmd() *cobra.Command {
	var flags boardFlags

	cmd := &cobra.Command{
		Use:   "move <column> <index> <to>",
		Short: "Drag the card at index of column onto another column",
		Long: `move picks up the card at <index> (0-based, counted on the board as
printed with the same filters) and drops it on column <to>.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := models.ParseStatus(args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index %q: %w", args[1], err)
			}
			to, err := models.ParseStatus(args[2])
			if err != nil {
				return err
			}

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.load(cmd.Context(), &flags); err != nil {
				return err
			}

			if err := s.ctrl.PickUp(board.Location{Column: from, Index: index}); err != nil {
				return err
			}
			op, err := s.ctrl.Drop(cmd.Context(), &board.Location{Column: to})
			if err != nil {
				return err
			}
			if op.Skipped() {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to move")
				return nil
			}
			if err := op.Wait(); err != nil {
				printBoard(cmd.OutOrStdout(), s.ctrl.View())
				return errors.New(gateway.Message(err))
			}
			printBoard(cmd.OutOrStdout(), s.ctrl.View())
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.ctrl.Delete(cmd.Context(), args[0]).Wait(); err != nil {
				return errors.New(gateway.Message(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func printBoard(w io.Writer, v board.View) {
	if v.Error != "" {
		fmt.Fprintf(w, "! %s\n", v.Error)
	}
	if msg := v.Emptiness.String(); msg != "" {
		fmt.Fprintln(w, msg)
		return
	}

	for _, status := range models.Statuses {
		tasks := v.Columns[status]
		fmt.Fprintf(w, "== %s (%d)\n", status, len(tasks))
		for i, t := range tasks {
			line := []string{fmt.Sprintf("  [%d] %s", i, t.Title)}
			if t.Priority != "" {
				line = append(line, string(t.Priority))
			}
			if t.DueDate != "" {
				line = append(line, "due "+t.DueDate)
			}
			if t.Assignee != "" {
				line = append(line, "@"+t.Assignee)
			}
			fmt.Fprintf(w, "%s  (%s)\n", strings.Join(line, "  "), t.ID)
		}
	}
}
