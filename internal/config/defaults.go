package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/companion/data/db/history.db"
	}
	if cfg.Storage.KnowledgePath == "" {
		cfg.Storage.KnowledgePath = "/usr/local/var/companion/data/knowledge"
	}
	if cfg.Storage.KnowledgeBackend == "" {
		cfg.Storage.KnowledgeBackend = "chromem"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/companion/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Ingestion.ChunkSize == 0 {
		cfg.Ingestion.ChunkSize = 1000
	}
	if cfg.Ingestion.ChunkOverlap == 0 {
		cfg.Ingestion.ChunkOverlap = 200
	}
	if cfg.Ingestion.FetchTimeout == 0 {
		cfg.Ingestion.FetchTimeout = 30 * time.Second
	}
	if cfg.Ingestion.MaxFetchBytes == 0 {
		cfg.Ingestion.MaxFetchBytes = 10 << 20
	}
	if cfg.Memory.ModelName == "" {
		cfg.Memory.ModelName = "llama2-13b"
	}
	if cfg.Memory.RecentLimit == 0 {
		cfg.Memory.RecentLimit = 30
	}
	if cfg.Memory.RetrievalTopK == 0 {
		cfg.Memory.RetrievalTopK = 5
	}
	if cfg.Memory.SeedDelimiter == "" {
		cfg.Memory.SeedDelimiter = "\n\n"
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "echo"
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 1024
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 10
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = 10 * time.Second
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".csv", ".xlsx", ".json"}
	}
}
