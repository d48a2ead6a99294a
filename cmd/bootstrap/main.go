// Package main 系统引导：创建默认租户并播种预置数据
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"novelforge-api/internal/config"
	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/infrastructure/persistence/postgres"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("failed to init postgres: %v", err)
	}
	defer func() { _ = pgClient.Close() }()

	tenantRepo := postgres.NewTenantRepository(pgClient)

	// 创建默认租户
	defaultTenantSlug := os.Getenv("BOOTSTRAP_TENANT_SLUG")
	if defaultTenantSlug == "" {
		defaultTenantSlug = "default-tenant"
	}

	exists, err := tenantRepo.ExistsBySlug(ctx, defaultTenantSlug)
	if err != nil {
		log.Fatalf("failed to check tenant existence: %v", err)
	}

	var tenantID string
	if !exists {
		fmt.Printf("Creating default tenant: %s...\n", defaultTenantSlug)
		tenant := entity.NewTenant("Default Tenant", defaultTenantSlug)
		if err := tenantRepo.Create(ctx, tenant); err != nil {
			log.Fatalf("failed to create default tenant: %v", err)
		}
		tenantID = tenant.ID
		fmt.Printf("Default tenant created with ID: %s\n", tenantID)
	} else {
		tenant, err := tenantRepo.GetBySlug(ctx, defaultTenantSlug)
		if err != nil {
			log.Fatalf("failed to get existing tenant: %v", err)
		}
		tenantID = tenant.ID
		fmt.Printf("Default tenant already exists with ID: %s\n", tenantID)
	}

	// 播种关系类型词表与预置写作风格
	txMgr := postgres.NewTxManager(pgClient)
	tenantCtx := postgres.NewTenantContext(pgClient)
	seeder := postgres.NewTenantSeeder(
		txMgr, tenantCtx,
		postgres.NewRelationshipTypeRepository(pgClient),
		postgres.NewWritingStyleRepository(pgClient),
	)
	registry := postgres.NewRegistry(pgClient, seeder)
	defer registry.CloseAll()

	if err := registry.EnsureTenant(ctx, tenantID); err != nil {
		log.Fatalf("failed to seed tenant: %v", err)
	}

	fmt.Println("Bootstrap completed successfully.")
}
