// Package worker indexes batches of FHIR resources in parallel.
//
// Results come back in submission order, one per job, whatever the number
// of workers:
//
//	bi := worker.NewBatchIndexer(indexer.IndexBytes, 4)
//	batch := bi.IndexBatch(ctx, resources)
//	for _, r := range batch.Results {
//	    if r.Error != nil {
//	        // Handle error
//	    }
//	    // Store r.Indices
//	}
package worker
