package main

import (
	"context"
	"os"

	"github.com/2beens/contactform/internal"
	"github.com/2beens/contactform/internal/config"
	"github.com/2beens/contactform/internal/logging"
	"github.com/2beens/contactform/internal/serverless"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Built once per cold start, then reused by every invocation.
func main() {
	// a local .env file is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("load .env file: %s", err)
	}

	cfg := config.Default()
	cfg.Environment = getenv("CONTACTFORM_ENV", "production")
	cfg.LogFormatJSON = true
	if configPath := os.Getenv("CONTACTFORM_CONFIG"); configPath != "" {
		loaded, err := config.Load(cfg.Environment, configPath)
		if err != nil {
			log.Fatalf("load config: %s", err)
		}
		cfg = loaded
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		log.Fatalf("load secrets: %s", err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogToStdout:      true,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    cfg.LogFormatJSON,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        secrets.SentryDSN,
		SentryServerName: "contact-form-lambda",
	})

	server, err := internal.NewServer(context.Background(), internal.NewServerParams{
		Config:      cfg,
		Secrets:     secrets,
		VersionInfo: os.Getenv("AWS_LAMBDA_FUNCTION_VERSION"),
	})
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	adapter := serverless.NewAdapter(
		server.Handler(),
		serverless.WithBasePath(cfg.LambdaBasePath),
	)

	log.Infof("lambda handler ready, base path: [%s]", cfg.LambdaBasePath)
	lambda.Start(adapter.Handle)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
