package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/docsense/internal/profile"
	"github.com/hrygo/docsense/plugin/blob"
	"github.com/hrygo/docsense/plugin/textextract"
	"github.com/hrygo/docsense/server/ai"
	"github.com/hrygo/docsense/server/ingest"
	apiv1 "github.com/hrygo/docsense/server/router/api/v1"
	"github.com/hrygo/docsense/store"
	"github.com/hrygo/docsense/store/db"
)

const greetingBanner = `docsense - document ingestion and semantic retrieval`

var rootCmd = &cobra.Command{
	Use:   "docsense",
	Short: "docsense is a document ingestion and semantic retrieval service",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		instanceProfile := &profile.Profile{
			Mode:   viper.GetString("mode"),
			Addr:   viper.GetString("addr"),
			Port:   viper.GetInt("port"),
			Data:   viper.GetString("data"),
			Driver: viper.GetString("driver"),
			DSN:    viper.GetString("dsn"),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			return fmt.Errorf("failed to create db driver: %w", err)
		}
		if err := dbDriver.Migrate(ctx); err != nil {
			_ = dbDriver.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		storeInstance := store.New(dbDriver, instanceProfile)
		defer storeInstance.Close()

		provider := ai.NewProvider(ai.ProviderConfigFromProfile(instanceProfile))
		batcher := ai.NewBatcher(provider, instanceProfile.EmbeddingBatch, instanceProfile.EmbeddingPause)

		var tika *textextract.TikaClient
		if instanceProfile.TikaServerURL != "" {
			tika = textextract.NewTikaClient(instanceProfile.TikaServerURL, 30*time.Second)
		}
		extractor := textextract.NewComposite(tika)

		blobs, err := blob.NewLocalStore(filepath.Join(instanceProfile.Data, "blobs"))
		if err != nil {
			return fmt.Errorf("failed to create blob store: %w", err)
		}

		ingestService := ingest.NewService(instanceProfile, storeInstance, batcher, extractor, blobs)

		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.Use(echomw.Recover())
		e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
			LogURI:    true,
			LogStatus: true,
			LogMethod: true,
			LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
				slog.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status)
				return nil
			},
		}))
		apiv1.NewAPIV1Service(instanceProfile, storeInstance, ingestService).Register(e)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			addr := fmt.Sprintf("%s:%d", instanceProfile.Addr, instanceProfile.Port)
			slog.Info("server started", "addr", addr, "mode", instanceProfile.Mode, "driver", instanceProfile.Driver)
			if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})

		g.Go(func() error {
			runner := ingest.NewRunner(storeInstance, provider, instanceProfile.ReembedInterval)
			runner.Run(gctx)
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return e.Shutdown(shutdownCtx)
		})

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		g.Go(func() error {
			select {
			case sig := <-sigCh:
				slog.Info("received signal, shutting down", "signal", sig.String())
				cancel()
			case <-gctx.Done():
			}
			return nil
		})

		fmt.Println(greetingBanner)
		return g.Wait()
	},
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `mode of the server, can be "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of the server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")

	if err := viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("docsense")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
