package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"botnest/config"
	"botnest/dblayer"
	"botnest/deploy"
	"botnest/handlers"
	"botnest/provision"
	"botnest/sched"
	"botnest/supervisor"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Parse flags
	listen := flag.String("l", "", "Listen address (overrides LISTEN_ADDR)")
	dbDSN := flag.String("d", "", "Database DSN (overrides DATABASE_DSN)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config error: ", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbDSN != "" {
		cfg.DatabaseDSN = *dbDSN
	}
	handlers.JWTSecret = []byte(cfg.JWTSecret)

	// Initialize database
	store, err := dblayer.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer store.Close()

	// Pick the process supervisor
	var sup supervisor.Supervisor
	if cfg.Supervisor == "kube" {
		sup, err = supervisor.NewKube(cfg.Kubeconfig)
		if err != nil {
			log.Fatal("Failed to init kube supervisor: ", err)
		}
		log.Println("Using kube supervisor")
	} else {
		sup = supervisor.NewPM2(cfg.PM2Bin)
		log.Println("Using pm2 supervisor")
	}

	prov := &provision.Provisioner{
		TemplateDir:      cfg.TemplateDir,
		InstancesDir:     cfg.InstancesDir,
		SharedModulesDir: cfg.SharedModulesDir,
	}

	svc := deploy.NewService(store, sup, prov, deploy.Config{
		DailyCost:        cfg.DailyCost,
		ProvisionTimeout: cfg.ProvisionTimeout,
	})

	seedAdmin(store, cfg)

	// Billing runs on its own ticker; duplicate fires for the same period
	// are absorbed by the billing watermark.
	processor := sched.NewProcessor(16, 2)
	processor.Start()
	defer processor.Close()

	cron := sched.NewCronScheduler(processor)
	cron.RegisterJob(cfg.BillingPeriod, deploy.NewBillingJob(store, svc, cfg.DailyCost, cfg.BillingPeriod))
	cron.Start()
	defer cron.Stop()

	log.Println("Control plane starting...")

	// Setup Gin router
	r := gin.Default()

	authH := handlers.NewAuthHandler(store)
	botH := handlers.NewBotHandler(svc)
	payH := handlers.NewPaymentHandler(svc)
	adminH := handlers.NewAdminHandler(svc)

	// Health check endpoint
	r.GET("/health", handlers.Health(store, cfg.Supervisor))

	// Public routes
	r.POST("/auth/register", authH.Register)
	r.POST("/auth/login", authH.Login)

	// Protected routes
	api := r.Group("/api")
	api.Use(handlers.AuthMiddleware())
	{
		api.GET("/me", botH.Me)
		api.GET("/transactions", botH.Transactions)
		api.GET("/bots", botH.List)
		api.POST("/bots", botH.Deploy)
		api.POST("/bots/:handle/stop", botH.Stop)
		api.DELETE("/bots/:handle", botH.Delete)
		api.POST("/payments", payH.Submit)
	}

	// Admin routes
	admin := api.Group("/admin")
	admin.Use(handlers.AdminMiddleware())
	{
		admin.GET("/users", adminH.ListUsers)
		admin.GET("/bots", adminH.ListBots)
		admin.GET("/stats", adminH.Stats)
		admin.POST("/topup", adminH.Topup)
		admin.POST("/bots/:handle/stop", adminH.StopBot)
		admin.GET("/payments", adminH.ListPayments)
		admin.POST("/payments/:id/approve", adminH.ApprovePayment)
		admin.POST("/payments/:id/reject", adminH.RejectPayment)
	}

	// Start server
	log.Printf("Server listening on %s", cfg.Listen)
	r.Run(cfg.Listen)
}

// seedAdmin makes sure the configured operator account exists.
func seedAdmin(store *dblayer.Store, cfg config.Config) {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return
	}
	ctx := context.Background()
	if _, err := store.GetUserByUsername(ctx, cfg.AdminUsername); err == nil {
		return
	} else if !errors.Is(err, dblayer.ErrNotFound) {
		log.Printf("Warning: admin lookup failed: %v", err)
		return
	}

	hash, err := handlers.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Printf("Warning: admin seed failed: %v", err)
		return
	}
	if _, err := store.CreateUser(ctx, cfg.AdminUsername, cfg.AdminUsername+"@localhost", hash, "admin"); err != nil {
		log.Printf("Warning: admin seed failed: %v", err)
		return
	}
	log.Printf("Seeded admin user %s", cfg.AdminUsername)
}
