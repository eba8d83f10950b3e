package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"microblog/cache"
	"microblog/crud"
	"microblog/database"
	"microblog/domain"
	"microblog/http"
	"microblog/storage"
)

// app holds what every command needs: the configuration, a logger and the database.
type app struct {
	prod bool
	cfg  Config
	log  *logrus.Entry
	db   *database.DB
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "microblog [command]",
		Short:         "A blogging platform with groups, comments and follow feeds",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	}
	root.PersistentFlags().BoolVar(&a.prod, "prod", false,
		"Provide this flag in production to ensure that a .config.json file is provided before the application starts.")

	root.AddCommand(
		a.serveCmd(),
		a.migrateCmd(),
		a.resetCmd(),
		a.groupCmd(),
	)
	return root
}

// setup loads the configuration and opens the database.
func (a *app) setup() error {
	cfg, err := LoadConfig(".", a.prod)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = newLogger(cfg)
	a.db, err = database.Open(cfg.Database, cfg.IsProd())
	return err
}

func (a *app) services(extra ...crud.ServicesConfig) (*crud.Services, error) {
	cfgs := append([]crud.ServicesConfig{
		crud.WithLogger(a.log),
		crud.WithUser(a.cfg.Pepper, a.cfg.HMACKey),
		crud.WithGroup(),
	}, extra...)
	return crud.NewServices(a.db.Gorm, cfgs...)
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Migrate the database and serve the web app",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.db.AutoMigrate(); err != nil {
				return err
			}
			store, err := a.assetStore()
			if err != nil {
				return err
			}
			pageCache, err := a.pageCache(cmd.Context())
			if err != nil {
				return err
			}
			services, err := a.services(
				crud.WithImage(store),
				crud.WithPost(),
				crud.WithComment(),
				crud.WithFollow(),
				crud.WithFeed(),
			)
			if err != nil {
				return err
			}

			opts := []http.Option{http.WithLogger(a.log), http.WithCache(pageCache)}
			if a.cfg.CSRFKey != "" {
				opts = append(opts, http.WithCSRF([]byte(a.cfg.CSRFKey), a.cfg.IsProd()))
			}
			if local, ok := store.(*storage.LocalStore); ok {
				opts = append(opts, http.WithMedia(local.Root, local.URLPrefix))
			}
			server := http.NewServer(services, opts...)

			errc := make(chan error, 1)
			go func() {
				errc <- server.ListenAndServe(":" + strconv.Itoa(a.cfg.Port))
			}()
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errc:
				return err
			case sig := <-stop:
				a.log.WithField("signal", sig.String()).Info("shutting down")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}
}

func (a *app) assetStore() (domain.AssetStore, error) {
	switch a.cfg.Media.Backend {
	case "s3":
		return storage.NewS3Store(a.cfg.Media.S3)
	case "local", "":
		return storage.NewLocalStore(a.cfg.Media.Root, a.cfg.Media.URLPrefix)
	}
	return nil, errors.Errorf("unknown media backend %q", a.cfg.Media.Backend)
}

func (a *app) pageCache(ctx context.Context) (cache.Store, error) {
	ttl := time.Duration(a.cfg.Cache.TTL) * time.Second
	switch a.cfg.Cache.Backend {
	case "redis":
		redisCfg := a.cfg.Cache.Redis
		if redisCfg.TTL == 0 {
			redisCfg.TTL = a.cfg.Cache.TTL
		}
		return cache.NewRedis(ctx, redisCfg)
	case "memory", "":
		if ttl <= 0 {
			ttl = cache.DefaultTTL
		}
		return cache.NewMemory(ttl), nil
	case "none":
		return cache.Nop{}, nil
	}
	return nil, errors.Errorf("unknown cache backend %q", a.cfg.Cache.Backend)
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.db.AutoMigrate(); err != nil {
				return err
			}
			a.log.Info("database migrated")
			return nil
		},
	}
}

func (a *app) resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop all tables and create them again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes all data, confirm with --yes")
			}
			if err := a.db.DestructiveReset(); err != nil {
				return err
			}
			a.log.Warn("database reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm that all data may be deleted")
	return cmd
}

func (a *app) groupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage the groups posts can be published in",
	}

	var group domain.Group
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.services()
			if err != nil {
				return err
			}
			if err := services.Group.Create(cmd.Context(), &group); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created group %s (%d)\n", group.Slug, group.ID)
			return nil
		},
	}
	create.Flags().StringVar(&group.Slug, "slug", "", "unique url name of the group")
	create.Flags().StringVar(&group.Title, "title", "", "title of the group")
	create.Flags().StringVar(&group.Description, "description", "", "short description")
	create.MarkFlagRequired("slug")
	create.MarkFlagRequired("title")

	list := &cobra.Command{
		Use:   "list",
		Short: "List all groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.services()
			if err != nil {
				return err
			}
			groups, err := services.Group.All(cmd.Context())
			if err != nil {
				return err
			}
			renderGroups(cmd, groups)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <slug>",
		Short: "Delete a group, keeping its posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.services()
			if err != nil {
				return err
			}
			if err := services.Group.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			// Cached feed pages still name the group. Only a shared backend can be
			// reached from here, in-process caches expire on their own.
			if pageCache, err := a.pageCache(cmd.Context()); err != nil {
				a.log.WithError(err).Warn("feed cache unavailable")
			} else if err := http.InvalidateFeed(cmd.Context(), pageCache); err != nil {
				a.log.WithError(err).Warn("feed cache invalidation failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted group %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func renderGroups(cmd *cobra.Command, groups []domain.Group) {
	if len(groups) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No groups yet.")
		return
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"ID", "Slug", "Title", "Description"})
	for _, g := range groups {
		table.Append([]string{strconv.Itoa(g.ID), g.Slug, g.Title, g.Description})
	}
	table.Render()
}
