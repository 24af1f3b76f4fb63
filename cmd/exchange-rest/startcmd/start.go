/*
Copyright SecureKey Technologies Inc. All Rights Reserved.
SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/component/storage/leveldb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/analytics"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim"
	exchangehttp "github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/transport/http"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/signer/jwtvp"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/store/credential"
)

const (
	// api host flag.
	apiHostFlagName      = "api-host"
	apiHostEnvKey        = "EXCHANGE_REST_API_HOST"
	apiHostFlagShorthand = "a"
	apiHostFlagUsage     = "Host Name:Port." +
		" Alternatively, this can be set with the following environment variable: " + apiHostEnvKey

	// api token flag.
	apiTokenFlagName      = "api-token"
	apiTokenEnvKey        = "EXCHANGE_REST_API_TOKEN" // nolint:gosec
	apiTokenFlagShorthand = "t"
	apiTokenFlagUsage     = "Check for bearer token in the authorization header (optional)." +
		" Alternatively, this can be set with the following environment variable: " + apiTokenEnvKey

	databaseTypeFlagName      = "database-type"
	databaseTypeEnvKey        = "EXCHANGE_REST_DATABASE_TYPE"
	databaseTypeFlagShorthand = "q"
	databaseTypeFlagUsage     = "The type of database used for claimed credentials. " +
		"Supported options: mem, leveldb. " +
		" Alternatively, this can be set with the following environment variable: " + databaseTypeEnvKey

	databaseURLFlagName      = "database-url"
	databaseURLEnvKey        = "EXCHANGE_REST_DATABASE_URL"
	databaseURLFlagShorthand = "v"
	databaseURLFlagUsage     = "The URL of the database. Not needed if using memstore." +
		" For leveldb this is the database directory." +
		" Alternatively, this can be set with the following environment variable: " + databaseURLEnvKey

	databasePrefixFlagName      = "database-prefix"
	databasePrefixEnvKey        = "EXCHANGE_REST_DATABASE_PREFIX"
	databasePrefixFlagShorthand = "u"
	databasePrefixFlagUsage     = "An optional prefix of the credential store name. " +
		" Alternatively, this can be set with the following environment variable: " + databasePrefixEnvKey

	databaseTimeoutFlagName  = "database-timeout"
	databaseTimeoutFlagUsage = "Total time in seconds to wait until the db is available before giving up." +
		" Default: " + databaseTimeoutDefault + " seconds." +
		" Alternatively, this can be set with the following environment variable: " + databaseTimeoutEnvKey
	databaseTimeoutEnvKey  = "EXCHANGE_REST_DATABASE_TIMEOUT"
	databaseTimeoutDefault = "30"

	// log level.
	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "EXCHANGE_REST_LOG_LEVEL"
	logLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey

	tlsCertFileFlagName      = "tls-cert-file"
	tlsCertFileEnvKey        = "EXCHANGE_REST_TLS_CERT_FILE"
	tlsCertFileFlagShorthand = "c"
	tlsCertFileFlagUsage     = "tls certificate file." +
		" Alternatively, this can be set with the following environment variable: " + tlsCertFileEnvKey

	tlsKeyFileFlagName      = "tls-key-file"
	tlsKeyFileEnvKey        = "EXCHANGE_REST_TLS_KEY_FILE"
	tlsKeyFileFlagShorthand = "k"
	tlsKeyFileFlagUsage     = "tls key file." +
		" Alternatively, this can be set with the following environment variable: " + tlsKeyFileEnvKey

	// outbound timeout flag.
	outboundTimeoutFlagName  = "outbound-timeout"
	outboundTimeoutEnvKey    = "EXCHANGE_REST_OUTBOUND_TIMEOUT"
	outboundTimeoutFlagUsage = "Timeout of every request sent to an exchange endpoint, as a duration (e.g. 30s)." +
		" Default: " + outboundTimeoutDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + outboundTimeoutEnvKey
	outboundTimeoutDefault = "30s"

	// signer seed flag.
	signerSeedFlagName      = "signer-seed"
	signerSeedEnvKey        = "EXCHANGE_REST_SIGNER_SEED" // nolint:gosec
	signerSeedFlagShorthand = "s"
	signerSeedFlagUsage     = "Passphrase the holder signing key is derived from, so the holder DID survives restarts." +
		" A random key is generated if not set." +
		" Alternatively, this can be set with the following environment variable: " + signerSeedEnvKey

	// metrics path flag.
	metricsPathFlagName  = "metrics-path"
	metricsPathEnvKey    = "EXCHANGE_REST_METRICS_PATH"
	metricsPathFlagUsage = "Path of the Prometheus metrics endpoint. Defaults to " + metricsPathDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + metricsPathEnvKey
	metricsPathDefault = "/metrics"

	// webhook url flag.
	webhookURLFlagName      = "webhook-url"
	webhookURLEnvKey        = "EXCHANGE_REST_WEBHOOK_URL"
	webhookURLFlagShorthand = "w"
	webhookURLFlagUsage     = "URL to send session notifications to." +
		" This flag can be repeated, allowing for multiple listeners." +
		" Alternatively, this can be set with the following environment variable (in CSV format): " + webhookURLEnvKey

	databaseTypeMemOption     = "mem"
	databaseTypeLevelDBOption = "leveldb"

	tracerName = "github.com/learningeconomy/vcapi-exchange-go"
)

var (
	errMissingHost = errors.New("host not provided")
	logger         = log.New("vcapi-exchange/rest")
)

type serverParameters struct {
	server                  server
	host, token             string
	tlsCertFile, tlsKeyFile string
	signerSeed, metricsPath string
	outboundTimeout         time.Duration
	webhookURLs             []string
	dbParam                 *dbParam
}

type dbParam struct {
	dbType  string
	url     string
	prefix  string
	timeout uint64
}

// nolint:gochecknoglobals
var supportedStorageProviders = map[string]func(url string) (storage.Provider, error){
	databaseTypeMemOption: func(_ string) (storage.Provider, error) { // nolint:unparam
		return mem.NewProvider(), nil
	},
	databaseTypeLevelDBOption: func(path string) (storage.Provider, error) { // nolint:unparam
		return leveldb.NewProvider(path), nil
	},
}

type server interface {
	ListenAndServe(host string, router http.Handler, certFile, keyFile string) error
}

// HTTPServer represents an actual server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host string, router http.Handler, certFile, keyFile string) error {
	if certFile != "" && keyFile != "" {
		return http.ListenAndServeTLS(host, certFile, keyFile, router)
	}

	return http.ListenAndServe(host, router)
}

// Cmd returns the Cobra start command.
func Cmd(server server) (*cobra.Command, error) {
	startCmd := createStartCMD(server)

	createFlags(startCmd)

	return startCmd, nil
}

func createStartCMD(server server) *cobra.Command { //nolint: funlen
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exchange service",
		Long:  `Start the credential exchange REST service`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel, err := getUserSetVar(cmd, logLevelFlagName, logLevelEnvKey, true)
			if err != nil {
				return err
			}

			err = setLogLevel(logLevel)
			if err != nil {
				return err
			}

			host, err := getUserSetVar(cmd, apiHostFlagName, apiHostEnvKey, false)
			if err != nil {
				return err
			}

			token, err := getUserSetVar(cmd, apiTokenFlagName, apiTokenEnvKey, true)
			if err != nil {
				return err
			}

			dbParam, err := getDBParam(cmd)
			if err != nil {
				return err
			}

			tlsCertFile, err := getUserSetVar(cmd, tlsCertFileFlagName, tlsCertFileEnvKey, true)
			if err != nil {
				return err
			}

			tlsKeyFile, err := getUserSetVar(cmd, tlsKeyFileFlagName, tlsKeyFileEnvKey, true)
			if err != nil {
				return err
			}

			outboundTimeout, err := getOutboundTimeout(cmd)
			if err != nil {
				return err
			}

			signerSeed, err := getUserSetVar(cmd, signerSeedFlagName, signerSeedEnvKey, true)
			if err != nil {
				return err
			}

			metricsPath, err := getUserSetVar(cmd, metricsPathFlagName, metricsPathEnvKey, true)
			if err != nil {
				return err
			}

			if metricsPath == "" {
				metricsPath = metricsPathDefault
			}

			webhookURLs, err := getUserSetVars(cmd, webhookURLFlagName, webhookURLEnvKey, true)
			if err != nil {
				return err
			}

			parameters := &serverParameters{
				server:          server,
				host:            host,
				token:           token,
				tlsCertFile:     tlsCertFile,
				tlsKeyFile:      tlsKeyFile,
				signerSeed:      signerSeed,
				metricsPath:     metricsPath,
				outboundTimeout: outboundTimeout,
				webhookURLs:     webhookURLs,
				dbParam:         dbParam,
			}

			return startService(parameters)
		},
	}
}

func getDBParam(cmd *cobra.Command) (*dbParam, error) {
	dbParam := &dbParam{}

	var err error

	dbParam.dbType, err = getUserSetVar(cmd, databaseTypeFlagName, databaseTypeEnvKey, false)
	if err != nil {
		return nil, err
	}

	dbParam.url, err = getUserSetVar(cmd, databaseURLFlagName, databaseURLEnvKey, true)
	if err != nil {
		return nil, err
	}

	dbParam.prefix, err = getUserSetVar(cmd, databasePrefixFlagName, databasePrefixEnvKey, true)
	if err != nil {
		return nil, err
	}

	dbTimeout, err := getUserSetVar(cmd, databaseTimeoutFlagName, databaseTimeoutEnvKey, true)
	if err != nil {
		return nil, err
	}

	if dbTimeout == "" || dbTimeout == "0" {
		dbTimeout = databaseTimeoutDefault
	}

	t, err := strconv.Atoi(dbTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db timeout %s: %w", dbTimeout, err)
	}

	dbParam.timeout = uint64(t)

	return dbParam, nil
}

func getOutboundTimeout(cmd *cobra.Command) (time.Duration, error) {
	v, err := getUserSetVar(cmd, outboundTimeoutFlagName, outboundTimeoutEnvKey, true)
	if err != nil {
		return 0, err
	}

	if v == "" {
		v = outboundTimeoutDefault
	}

	timeout, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse outbound timeout %s: %w", v, err)
	}

	return timeout, nil
}

func createFlags(startCmd *cobra.Command) {
	// api host flag
	startCmd.Flags().StringP(apiHostFlagName, apiHostFlagShorthand, "", apiHostFlagUsage)

	// api token flag
	startCmd.Flags().StringP(apiTokenFlagName, apiTokenFlagShorthand, "", apiTokenFlagUsage)

	// db type
	startCmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)

	// db url
	startCmd.Flags().StringP(databaseURLFlagName, databaseURLFlagShorthand, "", databaseURLFlagUsage)

	// db prefix
	startCmd.Flags().StringP(databasePrefixFlagName, databasePrefixFlagShorthand, "", databasePrefixFlagUsage)

	// db timeout
	startCmd.Flags().StringP(databaseTimeoutFlagName, "", "", databaseTimeoutFlagUsage)

	// log level
	startCmd.Flags().StringP(logLevelFlagName, "", "", logLevelFlagUsage)

	// tls cert file
	startCmd.Flags().StringP(tlsCertFileFlagName, tlsCertFileFlagShorthand, "", tlsCertFileFlagUsage)

	// tls key file
	startCmd.Flags().StringP(tlsKeyFileFlagName, tlsKeyFileFlagShorthand, "", tlsKeyFileFlagUsage)

	// outbound timeout
	startCmd.Flags().StringP(outboundTimeoutFlagName, "", "", outboundTimeoutFlagUsage)

	// signer seed
	startCmd.Flags().StringP(signerSeedFlagName, signerSeedFlagShorthand, "", signerSeedFlagUsage)

	// metrics path
	startCmd.Flags().StringP(metricsPathFlagName, "", "", metricsPathFlagUsage)

	// webhook url
	startCmd.Flags().StringSliceP(webhookURLFlagName, webhookURLFlagShorthand, []string{}, webhookURLFlagUsage)
}

func getUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		return value, nil
	}

	return "", errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

func getUserSetVars(cmd *cobra.Command, flagName, envKey string, isOptional bool) ([]string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetStringSlice(flagName)
		if err != nil {
			return nil, fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)
	if isSet {
		return strings.Split(value, ","), nil
	}

	if isOptional {
		return nil, nil
	}

	return nil, errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

func setLogLevel(logLevel string) error {
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level '%s' : %w", logLevel, err)
		}

		log.SetLevel("", level)

		logger.Infof("logger level set to %s", logLevel)
	}

	return nil
}

func validateAuthorizationBearerToken(w http.ResponseWriter, r *http.Request, token string) bool {
	actHdr := r.Header.Get("Authorization")
	expHdr := "Bearer " + token

	if subtle.ConstantTimeCompare([]byte(actHdr), []byte(expHdr)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthorised.\n")) // nolint:gosec,errcheck

		return false
	}

	return true
}

func authorizationMiddleware(token string) mux.MiddlewareFunc {
	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validateAuthorizationBearerToken(w, r, token) {
				next.ServeHTTP(w, r)
			}
		})
	}

	return middleware
}

func startService(parameters *serverParameters) error {
	if parameters.host == "" {
		return errMissingHost
	}

	handler, closeController, err := createRouter(parameters, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to start exchange rest on port [%s] : %w", parameters.host, err)
	}

	defer closeController()

	logger.Infof("Starting exchange rest on host [%s]", parameters.host)

	err = parameters.server.ListenAndServe(parameters.host, handler, parameters.tlsCertFile, parameters.tlsKeyFile)
	if err != nil {
		return fmt.Errorf("failed to start exchange rest on port [%s], cause:  %w", parameters.host, err)
	}

	return nil
}

// createRouter wires the exchange services and returns the CORS wrapped router.
// The metrics endpoint is served outside the bearer token check.
// The returned func stops session notification delivery.
func createRouter(parameters *serverParameters, reg *prometheus.Registry) (http.Handler, func(), error) {
	ctx, metrics, err := createServiceContext(parameters, reg)
	if err != nil {
		return nil, nil, err
	}

	ctrl := controller.New(ctx,
		controller.WithMetrics(metrics),
		controller.WithTimeout(parameters.outboundTimeout),
		controller.WithWebhookURLs(parameters.webhookURLs...))
	handlers := ctrl.GetRESTHandlers()

	router := mux.NewRouter()
	router.Handle(parameters.metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	sub := router.NewRoute().Subrouter()

	if parameters.token != "" {
		sub.Use(authorizationMiddleware(parameters.token))
	}

	for _, handler := range handlers {
		sub.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}

	return cors.New(
		cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		},
	).Handler(router), ctrl.Close, nil
}

// serviceContext provides the exchange collaborators to the controllers.
type serviceContext struct {
	transport api.Transport
	signer    api.Signer
	index     api.CredentialIndex
	claimer   api.Claimer
}

func (c *serviceContext) Transport() api.Transport             { return c.transport }
func (c *serviceContext) Signer() api.Signer                   { return c.signer }
func (c *serviceContext) CredentialIndex() api.CredentialIndex { return c.index }
func (c *serviceContext) Claimer() api.Claimer                 { return c.claimer }

func createServiceContext(parameters *serverParameters, reg *prometheus.Registry) (
	*serviceContext, *analytics.Metrics, error) {
	storePro, err := createStoreProvider(parameters)
	if err != nil {
		return nil, nil, err
	}

	var storeOpts []credential.Option

	if parameters.dbParam.prefix != "" {
		storeOpts = append(storeOpts, credential.WithStoreName(parameters.dbParam.prefix+credential.DefaultStoreName))
	}

	store, err := credential.New(storePro, storeOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	signer, err := createSigner(parameters.signerSeed)
	if err != nil {
		return nil, nil, err
	}

	logger.Infof("holder DID [%s]", signer.DID())

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics := analytics.NewMetrics(reg)

	claimer, err := claim.New(store,
		claim.WithAnalytics(analytics.Multi{&analytics.Logger{}, metrics}),
		claim.WithTracer(otel.Tracer(tracerName)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create claim executor: %w", err)
	}

	return &serviceContext{
		transport: exchangehttp.NewOutbound(exchangehttp.WithTimeout(parameters.outboundTimeout)),
		signer:    signer,
		index:     store,
		claimer:   claimer,
	}, metrics, nil
}

func createSigner(seed string) (*jwtvp.Signer, error) {
	if seed == "" {
		logger.Warnf("no signer seed set, the holder DID changes on restart")

		return jwtvp.Generate()
	}

	return jwtvp.NewFromPassphrase(seed)
}

func createStoreProvider(parameters *serverParameters) (storage.Provider, error) {
	provider, supported := supportedStorageProviders[parameters.dbParam.dbType]
	if !supported {
		return nil, fmt.Errorf("database type not set to a valid type." +
			" run start --help to see the available options")
	}

	var store storage.Provider

	err := backoff.RetryNotify(
		func() error {
			var openErr error
			store, openErr = provider(parameters.dbParam.url)
			return openErr
		},
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), parameters.dbParam.timeout),
		func(retryErr error, t time.Duration) {
			logger.Warnf(
				"failed to connect to storage, will sleep for %s before trying again : %s\n",
				t, retryErr)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to storage at %s : %w", parameters.dbParam.url, err)
	}

	return store, nil
}
