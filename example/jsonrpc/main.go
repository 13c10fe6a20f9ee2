package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/mnehpets/nsrpc/client"
	"github.com/mnehpets/nsrpc/jsonrpc"
	"github.com/mnehpets/nsrpc/jsonrpctest"
	"github.com/mnehpets/nsrpc/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var methods = schema.MustNew("",
	schema.Namespace("math",
		schema.Command("Add"),
		schema.Command("Sub"),
	),
)

func main() {
	// A local server standing in for a real one.
	srv := jsonrpctest.NewServer()
	defer srv.Close()
	srv.Handle("math.Add", func(params json.RawMessage) (interface{}, error) {
		var args []int
		if err := json.Unmarshal(params, &args); err != nil || len(args) != 2 {
			return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "want [a, b]")
		}
		return args[0] + args[1], nil
	})

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	c := client.New(srv.Params(), methods,
		client.WithLogger(logger),
		client.WithMetrics(client.NewMetrics(reg)),
	)
	defer c.Close()

	ctx := context.Background()
	math, err := c.Root().Namespace("math")
	if err != nil {
		log.Fatal(err)
	}
	add, err := math.Command("Add")
	if err != nil {
		log.Fatal(err)
	}

	sum, err := client.Invoke[int](ctx, add, jsonrpc.Positional(2, 3))
	if err != nil {
		log.Fatal(err)
	}
	logger.Info("math.Add", zap.Int("result", sum))

	// Sub is in the schema but the server does not implement it.
	_, err = math.Call(ctx, "Sub", jsonrpc.Named(map[string]interface{}{"a": 5, "b": 3}))
	var rpcErr *jsonrpc.JSONRPCError
	if errors.As(err, &rpcErr) {
		logger.Info("math.Sub failed", zap.Int("code", rpcErr.Code), zap.String("message", rpcErr.Message))
	}

	// Mul is not in the schema, so nothing is sent.
	if _, err := math.Call(ctx, "Mul", nil); errors.Is(err, client.ErrInvalidCommand) {
		logger.Info("math.Mul rejected", zap.Error(err))
	}

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("Serving metrics on :8080/metrics")
	log.Fatal(http.ListenAndServe(":8080", nil))
}
