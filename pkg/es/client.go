// Package es stores document chunks in an Elasticsearch dense_vector index.
package es

import (
	"crypto/tls"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"docrag-go/internal/config"
)

// NewClient creates an Elasticsearch client. Addresses may be comma separated.
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addrs,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}
