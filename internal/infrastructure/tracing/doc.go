/*
Package tracing provides lightweight request tracing for the watchdog
daemon's HTTP, websocket and gRPC surfaces and for outbound fault reports.

Spans are propagated with the X-Trace-ID and X-Span-ID headers (lower-cased
in gRPC metadata) and written to the structured log by a buffered collector.

	tracer := tracing.New("anrd", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	server := grpc.NewServer(
		grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
		grpc.StreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
	)

Successful spans are logged at Debug, failed ones at Warn.
*/
package tracing
