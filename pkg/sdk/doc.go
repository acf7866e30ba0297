// Package catrec provides an embedded Go client for the catrec
// recommendation engine: free-text problem descriptions in, ranked
// service-catalog entries out.
//
// The client wires the engine in process. Records live in Redis or in
// memory, the vector index lives in memory with optional bbolt
// persistence, and the caller supplies the embedding provider.
//
//	client, _ := catrec.New(ctx,
//	    catrec.WithRedis("localhost:6379", ""),
//	    catrec.WithEmbedder(myEmbedder),
//	)
//	defer client.Close()
//
//	_ = client.AddRecords(ctx, records)
//	summary, _ := client.IndexBatch(ctx)
//	recs, _ := client.Search(ctx, "cannot connect to the vpn", 5, 0)
package catrec
