package amqp

import "github.com/costwise/costwise/pkg/docimport"

// ImportDocumentMessage is the JSON envelope on the import queue. The
// document payload is the same DTO the REST endpoint accepts, so the parser
// pipeline can target either entry point with one format.
type ImportDocumentMessage struct {
	ProjectUid string                      `json:"projectUid"`
	UserId     string                      `json:"userId"`
	Document   docimport.ParsedDocumentDTO `json:"document"`
}
