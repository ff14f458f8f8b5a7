package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/maverick-software/toolboxd/internal/config"
	"github.com/maverick-software/toolboxd/internal/database"
	"github.com/maverick-software/toolboxd/internal/handlers"
	"github.com/maverick-software/toolboxd/internal/logger"
	"github.com/maverick-software/toolboxd/internal/queue"
	"github.com/maverick-software/toolboxd/internal/repository"
	"github.com/maverick-software/toolboxd/internal/router"
	"github.com/maverick-software/toolboxd/internal/services"
)

func main() {

	ctx := context.Background()

	// Load application configuration
	cfg := config.New()
	log.Println("Configuration loaded successfully")

	// Initialize structured logging
	logger.Init(cfg.LogLevel)

	// Initialize database configuration
	dbConfig := database.NewConfig(cfg)

	log.Printf("Initializing DynamoDB client for table: %s in region: %s", dbConfig.ToolboxesTable, dbConfig.Region)

	// Create DynamoDB client
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to initialize DynamoDB client: %v", err)
	}

	log.Println("DynamoDB client initialized successfully")

	// Initialize database operations
	envDB := database.NewEnvironmentOperations(dbClient, cfg.ToolboxesTableName)
	instanceDB := database.NewInstanceOperations(dbClient, cfg.InstancesTableName)
	catalogDB := database.NewCatalogOperations(dbClient, cfg.CatalogTableName)
	secretDB := database.NewSecretOperations(dbClient, cfg.SecretsTableName)
	log.Println("Database operations initialized")

	// Initialize repositories
	envRepo := repository.NewEnvironmentRepository(envDB)
	instanceRepo := repository.NewInstanceRepository(instanceDB)
	catalogRepo := repository.NewCatalogRepository(catalogDB)
	log.Println("Repositories initialized with DynamoDB backend")

	// Initialize secret storage
	secretService := services.NewSecretService(secretDB, cfg.SecretEncryptionKey)
	log.Println("Secret store initialized")

	// Initialize compute provider with retry
	doClient := services.NewDigitalOceanClient(cfg.DOAPIToken, cfg.DOAPIBaseURL)
	provider := services.NewRetryingProvider(doClient, services.DefaultRetryPolicy)
	log.Println("Compute provider initialized")

	// Initialize management agent client
	agentClient := services.NewAgentClient(cfg.AgentSharedSecret, cfg.AgentPort)
	log.Println("Agent client initialized")

	// Load AWS configuration for ECR
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("Failed to load AWS configuration: %v", err)
	}

	// Initialize registry service
	registryService := services.NewRegistryService(awsCfg, cfg.AWSAccountID)
	log.Println("Registry service initialized")

	// Per-environment operation serialization
	locks := services.NewKeyedMutex()

	// Initialize dispatcher and lifecycle services
	dispatcherService := services.NewDispatcherService(envRepo, instanceRepo, catalogRepo, agentClient, registryService, locks)
	lifecycleService := services.NewLifecycleService(
		envRepo,
		instanceRepo,
		provider,
		secretService,
		agentClient,
		dispatcherService,
		locks,
		services.LifecycleConfig{
			CallbackBaseURL:   cfg.CallbackBaseURL,
			AgentSharedSecret: cfg.AgentSharedSecret,
			AgentImage:        cfg.AgentImage,
			AgentPort:         cfg.AgentPort,
			DefaultRegion:     cfg.DefaultRegion,
			DefaultSize:       cfg.DefaultSize,
			DefaultImage:      cfg.DefaultImage,
			SSHKeyIDs:         cfg.DefaultSSHKeyIDs,
		},
	)
	log.Println("Lifecycle and dispatcher services initialized")

	// Initialize job queue (with buffer size of 100)
	jobQueue := queue.NewJobQueue(100)
	log.Println("Job queue initialized")

	// Initialize worker pool (5 concurrent workers)
	workerPool := queue.NewWorkerPool(jobQueue, 5)
	log.Println("Worker pool created with 5 concurrent workers")

	// Start workers
	workerPool.Start(func(job *queue.ProvisionJob) error {
		_, err := lifecycleService.RunProvisioning(ctx, job.EnvironmentID)
		return err
	})
	log.Println("Provision workers started")

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	environmentHandler := handlers.NewEnvironmentHandler(lifecycleService, envRepo, jobQueue)
	instanceHandler := handlers.NewInstanceHandler(dispatcherService)
	catalogHandler := handlers.NewCatalogHandler(catalogRepo, registryService)
	log.Println("Handlers initialized")

	// Setup router
	r := router.Setup(healthHandler, environmentHandler, instanceHandler, catalogHandler)

	// Setup graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down server gracefully...")

		// Close job queue to stop accepting new jobs
		jobQueue.Close()
		log.Println("Job queue closed, waiting for workers to finish...")

		// Wait for workers to finish processing current jobs
		workerPool.Wait()
		log.Println("All workers stopped")

		os.Exit(0)
	}()

	// Start server
	log.Printf("Starting server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
