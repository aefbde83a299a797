package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/unclebandit/campaign-engine/internal/config"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/queue"
	"github.com/unclebandit/campaign-engine/internal/service"
	"github.com/unclebandit/campaign-engine/internal/whatsapp"
)

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume campaign dispatch jobs and send the messages",
	RunE:  runWorker,
}

func init() {
	rootCmd.Flags().Int("concurrency", 4, "number of jobs processed in parallel")
	rootCmd.Flags().Bool("debug", false, "enable debug logging (overrides APP_DEBUG)")
	rootCmd.Flags().Bool("dry-run", false, "log messages instead of sending them")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("[WORKER] Exited with error")
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.App.Debug = true
	}
	cfg.App.ConfigureLogging()
	if cfg.Queue.AMQPURL == "" {
		return errors.New("AMQP_URL is required; without a broker the server dispatches in-process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	send := whatsapp.DryRun
	if dry, _ := cmd.Flags().GetBool("dry-run"); !dry {
		if cfg.Validator.StoreURI == "" {
			return errors.New("WHATSAPP_STORE_URI is required unless --dry-run is set")
		}
		client, err := whatsapp.OpenSession(ctx, cfg.Validator.StoreURI, cfg.Validator.LogLevel)
		if err != nil {
			return err
		}
		defer client.Disconnect()
		send = whatsapp.NewSender(client).Send
	}

	q := queue.NewAMQPQueue(cfg.Queue.AMQPURL)
	if err := q.Connect(ctx); err != nil {
		return err
	}
	defer q.Close()

	n, _ := cmd.Flags().GetInt("concurrency")
	p, err := startPool(ctx, q, send, n)
	if err != nil {
		return err
	}

	logrus.WithField("concurrency", n).Info("[WORKER] Waiting for dispatch jobs")
	<-ctx.Done()
	logrus.Info("[WORKER] Shutting down")
	p.wait()
	return nil
}

// pool runs DispatchWorkers fed from the dispatch topic. Completions go
// back on the completion topic.
type pool struct {
	jobs chan model.DispatchJob
	wg   sync.WaitGroup
}

func startPool(ctx context.Context, q queue.Queue, send service.SendFunc, n int) (*pool, error) {
	if n < 1 {
		n = 1
	}
	p := &pool{jobs: make(chan model.DispatchJob)}
	report := func(_ context.Context, done model.DispatchCompletion) error {
		return q.Publish(queue.TopicDispatchDone, done)
	}
	for i := 0; i < n; i++ {
		w := service.NewDispatchWorker(p.jobs, send, report)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Start(ctx)
		}()
	}

	err := queue.StartDispatchSubscriber(q, func(_ context.Context, job model.DispatchJob) error {
		select {
		case p.jobs <- job:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return p, err
}

// wait blocks until every worker has returned. The pool's context must be
// done.
func (p *pool) wait() {
	p.wg.Wait()
}
