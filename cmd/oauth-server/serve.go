package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	oauth "github.com/giantswarm/oauth-server"
	"github.com/giantswarm/oauth-server/instrumentation"
	"github.com/giantswarm/oauth-server/security"
	"github.com/giantswarm/oauth-server/server"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// Configuration keys of the serve command
const (
	AddrKey            = "addr"
	ClientsFileKey     = "clients-file"
	ShutdownTimeoutKey = "shutdown-timeout"

	AllowUnregisteredKey = "server.allow-unregistered-clients"
	AllowAllScopesKey    = "server.allow-all-scopes"
	ScopesKey            = "server.scopes"
	AdminsKey            = "server.admins"
	AdminScopeKey        = "server.admin-scope"
	AccessTokenTTLKey    = "server.access-token-ttl"
	CodeTTLKey           = "server.code-ttl"

	ServerNameKey        = "http.server-name"
	TrustProxyKey        = "http.trust-proxy"
	TrustedProxyCountKey = "http.trusted-proxy-count"
	HTTPSKey             = "http.https"
	RateLimitKey         = "http.rate-limit"
	RateBurstKey         = "http.rate-burst"

	OwnerHeaderKey     = "auth.owner-header"
	OwnerNameHeaderKey = "auth.owner-name-header"
	DevOwnersKey       = "auth.dev-owners"

	StorageBackendKey  = "storage.backend"
	StorageDSNKey      = "storage.dsn"
	StorageDebugKey    = "storage.debug"
	StorageCleanupKey  = "storage.cleanup-interval"
	ValkeyAddressKey   = "storage.valkey.address"
	ValkeyPasswordKey  = "storage.valkey.password"
	ValkeyDBKey        = "storage.valkey.db"
	ValkeyKeyPrefixKey = "storage.valkey.key-prefix"
	EncryptionKeyKey   = "storage.encryption-key"

	MetricsEnabledKey = "telemetry.metrics"
	TracesExporterKey = "telemetry.traces"
	AuditEnabledKey   = "telemetry.audit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authorization server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, slog.Default())
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	bind := func(key, flag string) {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}

	f.String("addr", ":8080", "Address to listen on")
	bind(AddrKey, "addr")
	f.String("clients-file", "", "YAML file with client registrations to load at startup")
	bind(ClientsFileKey, "clients-file")
	f.Duration("shutdown-timeout", 15*time.Second, "Time allowed for in-flight requests on shutdown")
	bind(ShutdownTimeoutKey, "shutdown-timeout")

	f.Bool("allow-unregistered-clients", false, "Accept clients identified only by their redirect URI host")
	bind(AllowUnregisteredKey, "allow-unregistered-clients")
	f.Bool("allow-all-scopes", false, "Accept any well-formed scope")
	bind(AllowAllScopesKey, "allow-all-scopes")
	f.StringSlice("scopes", nil, "Supported scope tokens")
	bind(ScopesKey, "scopes")
	f.StringSlice("admins", nil, "Resource owner IDs allowed to request the admin scope")
	bind(AdminsKey, "admins")
	f.String("admin-scope", server.DefaultAdminScope, "Scope token reserved for administrators")
	bind(AdminScopeKey, "admin-scope")
	f.Duration("access-token-ttl", server.DefaultAccessTokenTTL*time.Second, "Access token lifetime")
	bind(AccessTokenTTLKey, "access-token-ttl")
	f.Duration("code-ttl", server.DefaultAuthorizationCodeTTL*time.Second, "Authorization code lifetime")
	bind(CodeTTLKey, "code-ttl")

	f.String("server-name", oauth.DefaultServerName, "Name shown on the approval page")
	bind(ServerNameKey, "server-name")
	f.Bool("trust-proxy", false, "Trust X-Forwarded-For and X-Real-IP")
	bind(TrustProxyKey, "trust-proxy")
	f.Int("trusted-proxy-count", oauth.DefaultTrustedProxyCount, "Number of proxies in front of the server")
	bind(TrustedProxyCountKey, "trusted-proxy-count")
	f.Bool("https", false, "Send Strict-Transport-Security (set when served over HTTPS)")
	bind(HTTPSKey, "https")
	f.Float64("rate-limit", oauth.DefaultRateLimit, "Requests per second per client IP (negative disables)")
	bind(RateLimitKey, "rate-limit")
	f.Int("rate-burst", oauth.DefaultRateLimitBurst, "Burst size per client IP")
	bind(RateBurstKey, "rate-burst")

	f.String("owner-header", oauth.DefaultOwnerIDHeader, "Header carrying the authenticated resource owner ID")
	bind(OwnerHeaderKey, "owner-header")
	f.String("owner-name-header", oauth.DefaultOwnerNameHeader, "Header carrying the resource owner display name")
	bind(OwnerNameHeaderKey, "owner-name-header")
	f.StringSlice("dev-owners", nil, "Development only: fixed resource owner IDs, selected with login_hint")
	bind(DevOwnersKey, "dev-owners")

	f.String("storage", "memory", "Storage backend (memory, valkey, sqlite, postgres, mysql)")
	bind(StorageBackendKey, "storage")
	f.String("dsn", "", "Data source name of the SQL backend")
	bind(StorageDSNKey, "dsn")
	f.Bool("storage-debug", false, "Log every SQL query")
	bind(StorageDebugKey, "storage-debug")
	f.Duration("storage-cleanup-interval", time.Minute, "How often the SQL backend purges expired records")
	bind(StorageCleanupKey, "storage-cleanup-interval")
	f.String("valkey-address", "localhost:6379", "Valkey server address")
	bind(ValkeyAddressKey, "valkey-address")
	f.String("valkey-password", "", "Valkey password")
	bind(ValkeyPasswordKey, "valkey-password")
	f.Int("valkey-db", 0, "Valkey database number")
	bind(ValkeyDBKey, "valkey-db")
	f.String("valkey-key-prefix", "", "Prefix of all Valkey keys")
	bind(ValkeyKeyPrefixKey, "valkey-key-prefix")
	f.String("encryption-key", "", "Base64 AES-256 key sealing client secrets in Valkey")
	bind(EncryptionKeyKey, "encryption-key")

	f.Bool("metrics", true, "Expose Prometheus metrics on /metrics")
	bind(MetricsEnabledKey, "metrics")
	f.String("traces", "", "Trace exporter (stdout or empty)")
	bind(TracesExporterKey, "traces")
	f.Bool("audit", true, "Write security audit records")
	bind(AuditEnabledKey, "audit")
}

func serverConfigFromViper() *server.Config {
	return &server.Config{
		AllowUnregisteredClients: viper.GetBool(AllowUnregisteredKey),
		AllowAllScopes:           viper.GetBool(AllowAllScopesKey),
		SupportedScopes:          viper.GetStringSlice(ScopesKey),
		AdminResourceOwnerIDs:    viper.GetStringSlice(AdminsKey),
		AdminScope:               viper.GetString(AdminScopeKey),
		AccessTokenTTL:           int64(viper.GetDuration(AccessTokenTTLKey).Seconds()),
		AuthorizationCodeTTL:     int64(viper.GetDuration(CodeTTLKey).Seconds()),
	}
}

func storageConfigFromViper() storageConfig {
	return storageConfig{
		Backend:         viper.GetString(StorageBackendKey),
		DSN:             viper.GetString(StorageDSNKey),
		CleanupInterval: viper.GetDuration(StorageCleanupKey),
		Debug:           viper.GetBool(StorageDebugKey),
		ValkeyAddress:   viper.GetString(ValkeyAddressKey),
		ValkeyPassword:  viper.GetString(ValkeyPasswordKey),
		ValkeyDB:        viper.GetInt(ValkeyDBKey),
		ValkeyKeyPrefix: viper.GetString(ValkeyKeyPrefixKey),
		EncryptionKey:   viper.GetString(EncryptionKeyKey),
	}
}

func handlerConfigFromViper(logger *slog.Logger, inst *instrumentation.Instrumentation) oauth.Config {
	return oauth.Config{
		ServerName: viper.GetString(ServerNameKey),
		RateLimit: oauth.RateLimitConfig{
			Rate:  viper.GetFloat64(RateLimitKey),
			Burst: viper.GetInt(RateBurstKey),
		},
		Security: oauth.SecurityConfig{
			TrustProxy:        viper.GetBool(TrustProxyKey),
			TrustedProxyCount: viper.GetInt(TrustedProxyCountKey),
			HTTPS:             viper.GetBool(HTTPSKey),
		},
		Logger:          logger,
		Instrumentation: inst,
	}
}

// newAuthenticator returns the static development authenticator when
// dev owners are configured and the proxy header authenticator otherwise
func newAuthenticator(logger *slog.Logger) oauth.ResourceOwnerAuthenticator {
	if ids := viper.GetStringSlice(DevOwnersKey); len(ids) > 0 {
		logger.Warn("⚠️  SECURITY NOTICE: Development resource owners are ENABLED",
			"owners", ids,
			"risk", "Anyone reaching the server acts as one of these owners")
		owners := make([]server.ResourceOwner, 0, len(ids))
		for _, id := range ids {
			owners = append(owners, server.NewResourceOwner(id, id))
		}
		return oauth.NewStaticAuthenticator(owners...)
	}
	return oauth.HeaderAuthenticator{
		IDHeader:   viper.GetString(OwnerHeaderKey),
		NameHeader: viper.GetString(OwnerNameHeaderKey),
	}
}

func newInstrumentation() (*instrumentation.Instrumentation, bool, error) {
	metricsEnabled := viper.GetBool(MetricsEnabledKey)
	traces := viper.GetString(TracesExporterKey)

	cfg := instrumentation.Config{
		ServiceVersion: version,
		Enabled:        metricsEnabled || traces != "",
		TracesExporter: traces,
	}
	if metricsEnabled {
		cfg.MetricsExporter = instrumentation.ExporterPrometheus
	}

	inst, err := instrumentation.New(cfg)
	if err != nil {
		return nil, false, fmt.Errorf("initializing instrumentation: %w", err)
	}
	return inst, metricsEnabled, nil
}

// newMux mounts the authorization server next to the operational endpoints
func newMux(handler http.Handler, metrics bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return mux
}

func runServe(ctx context.Context, logger *slog.Logger) error {
	inst, metricsEnabled, err := newInstrumentation()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down instrumentation", "error", err)
		}
	}()
	otel.SetTracerProvider(inst.TracerProvider())

	store, closeStore, err := openStorage(storageConfigFromViper(), logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer closeStore()

	srv, err := server.New(store, serverConfigFromViper(), logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.SetAuditor(security.NewAuditor(logger, viper.GetBool(AuditEnabledKey)))
	srv.SetInstrumentation(inst)

	if path := viper.GetString(ClientsFileKey); path != "" {
		clients, err := loadClients(path)
		if err != nil {
			return err
		}
		if err := seedClients(ctx, srv, clients); err != nil {
			return err
		}
		logger.Info("Loaded client registry", "path", path, "clients", len(clients))
	}

	handler, err := oauth.NewHandler(srv, newAuthenticator(logger), handlerConfigFromViper(logger, inst))
	if err != nil {
		return fmt.Errorf("creating handler: %w", err)
	}
	defer handler.Close()

	httpServer := &http.Server{
		Addr:              viper.GetString(AddrKey),
		Handler:           newMux(handler, metricsEnabled),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", httpServer.Addr, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), viper.GetDuration(ShutdownTimeoutKey))
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}
