package main

import (
	"context"
	"log"
	"os"

	"k8s.io/utils/clock"

	"github.com/taotao0/jitsi-autoscaler/cmd/server"
	"github.com/taotao0/jitsi-autoscaler/internal/audit"
	"github.com/taotao0/jitsi-autoscaler/internal/cloud"
	"github.com/taotao0/jitsi-autoscaler/internal/config"
	"github.com/taotao0/jitsi-autoscaler/internal/group"
	"github.com/taotao0/jitsi-autoscaler/internal/kv"
	"github.com/taotao0/jitsi-autoscaler/internal/model"
	"github.com/taotao0/jitsi-autoscaler/internal/report"
	"github.com/taotao0/jitsi-autoscaler/internal/status"
	"github.com/taotao0/jitsi-autoscaler/internal/tracker"
)

func main() {
	cfg, err := config.Load(os.Getenv("AUTOSCALER_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	ctx := context.Background()

	// Initialize storage
	var store kv.Store
	redisStore, err := kv.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		log.Println("Falling back to in-memory storage...")
		store = kv.NewMemoryStore(nil)
	} else {
		log.Println("Connected to Redis at", cfg.Redis.Addr)
		store = redisStore
		defer redisStore.Close()
	}

	cl := clock.RealClock{}
	auditStore := audit.NewStore(store, cl, cfg.AuditTTL(), cfg.Audit.ScanCount)
	trackerStore := tracker.NewStore(store, cl, cfg.StatusTTL(), cfg.Audit.ScanCount)
	statusStore := status.NewStore(store, cfg.StatusTTL())
	statusStore.RegisterTracker(model.TypeJibri, trackerStore)
	registry := group.NewRegistry(store)

	var provider cloud.Provider
	k8sProvider, err := cloud.NewKubernetesProvider(cfg.Kubernetes.Kubeconfig, cfg.Kubernetes.Namespace)
	if err != nil {
		log.Printf("Cloud provider unavailable, reports will fail until it is configured: %v", err)
		initErr := err
		provider = cloud.ProviderFunc(func(context.Context, string, cloud.RetryPolicy) ([]cloud.Instance, error) {
			return nil, initErr
		})
	} else {
		provider = k8sProvider
	}

	retry := cloud.ExponentialBackoff(cfg.CloudRetry.MaxAttempts, cfg.CloudRetryBaseDelay())
	generator := report.NewGenerator(registry, trackerStore, provider, statusStore, retry)

	apiServer := server.NewAPIServer(registry, auditStore, statusStore, trackerStore, generator)
	if err := apiServer.Start(cfg.ListenAddr); err != nil {
		log.Fatalf("API server failed: %v", err)
	}
}
