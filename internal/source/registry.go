package source

// DefaultReaders maps campaign source types to readers. The csv_s3 source
// is only registered when a bucket is configured.
func DefaultReaders(s3cfg *S3Config) map[string]Reader {
	readers := map[string]Reader{
		"csv":     NewCSVReader(FileFetcher{}, "csv"),
		"csv_url": NewCSVReader(NewHTTPFetcher(), "csv_url"),
	}
	if s3cfg != nil && s3cfg.Bucket != "" {
		readers["csv_s3"] = NewCSVReader(NewS3Fetcher(*s3cfg), "csv_s3")
	}
	return readers
}
