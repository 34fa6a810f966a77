package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
)

// SecretsClient is the part of the Secrets Manager client LoadEnv needs.
type SecretsClient interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadEnv merges the JSON secret named by AWS_SECRET_ID (if any) into the
// environment and then loads the .env file. It returns how many variables the
// secret set. A missing .env file is not an error.
func LoadEnv(ctx context.Context, envPath string) (int, error) {
	applied := 0
	if secretID := os.Getenv("AWS_SECRET_ID"); secretID != "" {
		opts := []func(*awsconfig.LoadOptions) error{}
		if region := os.Getenv("AWS_REGION"); region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return 0, fmt.Errorf("load aws config: %w", err)
		}
		overwrite := strings.EqualFold(os.Getenv("AWS_SECRET_OVERWRITE"), "true")
		applied, err = LoadSecret(ctx, secretsmanager.NewFromConfig(cfg), secretID, overwrite)
		if err != nil {
			return 0, err
		}
	}

	if envPath == "" {
		envPath = ".env"
	}
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return applied, fmt.Errorf("load %s: %w", envPath, err)
	}
	return applied, nil
}

// LoadSecret copies the key/value pairs of a JSON secret into the environment.
// Variables already set are kept unless overwrite is true.
func LoadSecret(ctx context.Context, client SecretsClient, secretID string, overwrite bool) (int, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return 0, fmt.Errorf("fetching secret %s: %w", secretID, err)
	}

	var payload string
	switch {
	case out.SecretString != nil:
		payload = *out.SecretString
	case len(out.SecretBinary) > 0:
		payload = string(out.SecretBinary)
	default:
		return 0, fmt.Errorf("secret %s has no payload", secretID)
	}

	var kv map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &kv); err != nil {
		return 0, fmt.Errorf("parsing secret %s as JSON: %w", secretID, err)
	}

	applied := 0
	for key, val := range kv {
		if !overwrite && os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return applied, fmt.Errorf("setting env %s from secret: %w", key, err)
		}
		applied++
	}
	return applied, nil
}
