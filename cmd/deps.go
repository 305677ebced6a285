package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/audit"
	auditPostgres "github.com/frahmantamala/production-management/internal/audit/postgres"
	"github.com/frahmantamala/production-management/internal/auth"
	authPostgres "github.com/frahmantamala/production-management/internal/auth/postgres"
	"github.com/frahmantamala/production-management/internal/core/database"
	"github.com/frahmantamala/production-management/internal/core/events"
	"github.com/frahmantamala/production-management/internal/dashboard"
	"github.com/frahmantamala/production-management/internal/inventory"
	inventoryPostgres "github.com/frahmantamala/production-management/internal/inventory/postgres"
	"github.com/frahmantamala/production-management/internal/notification"
	notificationPostgres "github.com/frahmantamala/production-management/internal/notification/postgres"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/internal/production"
	productionPostgres "github.com/frahmantamala/production-management/internal/production/postgres"
	"github.com/frahmantamala/production-management/internal/role"
	rolePostgres "github.com/frahmantamala/production-management/internal/role/postgres"
	"github.com/frahmantamala/production-management/internal/user"
	userPostgres "github.com/frahmantamala/production-management/internal/user/postgres"
	"github.com/frahmantamala/production-management/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const appName = "production-management"

// Dependencies is everything the commands share: storage handles, the event
// bus and the domain services. Notifications are wired separately because the
// deliverer differs between the server and the worker.
type Dependencies struct {
	Config     *internal.Config
	DB         *sqlx.DB
	Gorm       *gorm.DB
	Redis      *redis.Client
	Logger     *slog.Logger
	Bus        *events.EventBus
	Registry   *prometheus.Registry
	Tx         database.TxManager
	Principals *permission.Resolver

	Audit      *audit.Service
	Users      *user.Service
	Roles      *role.Service
	Auth       *auth.Service
	Inventory  *inventory.Service
	Production *production.Service
	Dashboard  *dashboard.Service
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	deps := &Dependencies{
		Config:   config,
		DB:       db,
		Gorm:     gormDB,
		Logger:   lg,
		Bus:      events.NewEventBus(lg),
		Registry: prometheus.NewRegistry(),
		Tx:       database.NewTxManager(gormDB),
	}
	deps.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Registry.MustRegister(collectors.NewDBStatsCollector(db.DB, "postgres"))

	var cache permission.Cache
	if config.Redis.Enabled {
		client, err := initRedis(ctx, config.Redis)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		deps.Redis = client
		cache = permission.NewRedisCache(client, appName, config.Redis.PermissionTTL)
	} else {
		cache = permission.NewMemoryCache(config.Redis.PermissionTTL)
	}

	deps.Audit = audit.NewService(auditPostgres.NewAuditRepository(gormDB), lg)

	// users load principals and the resolver invalidates them on role changes
	var users *user.Service
	deps.Principals = permission.NewResolver(permission.LoaderFunc(func(ctx context.Context, id int64) (*permission.Principal, error) {
		return users.LoadPrincipal(ctx, id)
	}), cache, lg)
	users = user.NewService(userPostgres.NewUserRepository(gormDB), deps.Tx, deps.Audit, deps.Principals, config.Security.BCryptCost, lg)
	deps.Users = users

	deps.Roles = role.NewService(rolePostgres.NewRoleRepository(gormDB), deps.Tx, deps.Audit, deps.Principals, lg)

	tokens := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	deps.Auth = auth.NewService(authPostgres.NewAuthRepository(gormDB), tokens, deps.Tx, users, deps.Audit, lg)

	deps.Inventory = inventory.NewService(
		inventoryPostgres.NewInventoryRepository(gormDB),
		deps.Tx,
		deps.Audit,
		deps.Bus,
		inventory.NewMetrics(deps.Registry),
		lg,
	)
	deps.Production = production.NewService(
		productionPostgres.NewProductionRepository(gormDB),
		deps.Tx,
		deps.Inventory,
		deps.Audit,
		deps.Bus,
		lg,
	)
	deps.Dashboard = dashboard.NewService(dashboard.NewRepository(db), lg)

	return deps, nil
}

// NotificationService builds the notification service on top of deliverer
// and subscribes it to production and inventory events.
func (d *Dependencies) NotificationService(deliverer notification.Deliverer, broadcaster notification.Broadcaster) *notification.Service {
	svc := notification.NewService(
		notificationPostgres.NewNotificationRepository(d.Gorm),
		d.Tx,
		d.Users,
		deliverer,
		d.Audit,
		d.Logger,
	)
	notification.NewEventHandler(svc, d.Users, broadcaster, d.Logger).RegisterEventHandlers(d.Bus)
	return svc
}

func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("database close error", "error", err)
		}
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm so both see one connection limit.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:  gormLogger.Default.LogMode(gormLogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
}

func initRedis(ctx context.Context, cfg internal.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
