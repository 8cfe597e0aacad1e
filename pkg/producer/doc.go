// Package producer enriches corpus records before ingestion: LLM content extraction,
// RxNorm drug annotation and TF-IDF cross references between records.
package producer
