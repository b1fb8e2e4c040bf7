// Package lexrag indexes legal documents from government websites and
// uploaded files into a persistent vector store and answers questions
// against it.
//
// Service is the entry point. It owns the badger backend, the configured
// sources, the ingestion pipeline, the searcher and the scheduler that
// re-ingests every configured source on an interval:
//
//	cfg, err := config.Load("lexrag.yaml")
//	if err != nil {
//		return err
//	}
//	svc, err := lexrag.NewService(cfg)
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	if err := svc.Start(ctx); err != nil {
//		return err
//	}
//	results, err := svc.Search(ctx, "tenant eviction notice period", 0, -1)
package lexrag
