package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mnehpets/nsrpc/auth"
	"github.com/mnehpets/nsrpc/client"
	"github.com/mnehpets/nsrpc/schema"
	"github.com/mnehpets/nsrpc/transport"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	issuer := os.Getenv("OAUTH_ISSUER")
	clientID := os.Getenv("OAUTH_CLIENT_ID")
	clientSecret := os.Getenv("OAUTH_CLIENT_SECRET")
	if issuer == "" || clientID == "" || clientSecret == "" {
		log.Fatal("OAUTH_ISSUER, OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET must be set")
	}
	port, err := strconv.Atoi(os.Getenv("RPC_PORT"))
	if err != nil {
		port = 8080
	}

	ctx := context.Background()
	provider, err := auth.Discover(ctx, issuer)
	if err != nil {
		log.Fatalf("Failed to discover OIDC provider: %v", err)
	}
	var opts []auth.Option
	if aud := os.Getenv("OAUTH_AUDIENCE"); aud != "" {
		opts = append(opts, auth.WithAudience(aud))
	}
	var scopes []string
	if s := os.Getenv("OAUTH_SCOPES"); s != "" {
		scopes = strings.Fields(s)
	}
	ts := provider.ClientCredentials(ctx, clientID, clientSecret, scopes, opts...)

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	root := schema.MustNew("",
		schema.Namespace("JSONRPC", schema.Command("Ping"), schema.Command("Version")),
	)
	c := client.New(transport.ServerParams{
		Scheme: os.Getenv("RPC_SCHEME"),
		Host:   os.Getenv("RPC_HOST"),
		Port:   port,
	}, root, client.WithTokenSource(ts), client.WithLogger(logger))
	defer c.Close()

	resp, err := c.Call(ctx, "JSONRPC.Version", nil)
	if err != nil {
		log.Fatalf("JSONRPC.Version: %v", err)
	}
	fmt.Printf("Server version: %s\n", resp.Result)
}
