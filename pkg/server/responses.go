package server

import "encoding/xml"

const xmlns = "http://s3.amazonaws.com/doc/2006-03-01/"

// errorResponse is the XML error body. Short-circuit responses (304)
// carry no body at all.
type errorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource"`
	RequestID string   `xml:"RequestId"`
}

type ownerResult struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName"`
}

type bucketResult struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

type listAllMyBucketsResult struct {
	XMLName xml.Name       `xml:"ListAllMyBucketsResult"`
	Xmlns   string         `xml:"xmlns,attr"`
	Owner   ownerResult    `xml:"Owner"`
	Buckets []bucketResult `xml:"Buckets>Bucket"`
}

type contentsResult struct {
	Key          string      `xml:"Key"`
	LastModified string      `xml:"LastModified"`
	ETag         string      `xml:"ETag"`
	Size         int64       `xml:"Size"`
	StorageClass string      `xml:"StorageClass"`
	Owner        ownerResult `xml:"Owner"`
}

type commonPrefixResult struct {
	Prefix string `xml:"Prefix"`
}

type listBucketResult struct {
	XMLName        xml.Name             `xml:"ListBucketResult"`
	Xmlns          string               `xml:"xmlns,attr"`
	Name           string               `xml:"Name"`
	Prefix         string               `xml:"Prefix"`
	Marker         string               `xml:"Marker"`
	Delimiter      string               `xml:"Delimiter,omitempty"`
	MaxKeys        int                  `xml:"MaxKeys"`
	IsTruncated    bool                 `xml:"IsTruncated"`
	Contents       []contentsResult     `xml:"Contents"`
	CommonPrefixes []commonPrefixResult `xml:"CommonPrefixes"`
}
