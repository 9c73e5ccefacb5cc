// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "encoding/json"

// Document represents an S3-compatible policy document passed to the
// STS-equivalent issuance call to scope the resulting credential.
// The structure mirrors AWS IAM policies for compatibility.
//
// Example:
//
//	{
//	  "Version": "2012-10-17",
//	  "Statement": [{
//	    "Effect": "Allow",
//	    "Action": ["s3:GetObject", "s3:ListBucket"],
//	    "Resource": ["arn:aws:s3:::mybucket", "arn:aws:s3:::mybucket/*"]
//	  }]
//	}
type Document struct {
	Version    string      `json:"Version"`
	ID         string      `json:"Id,omitempty"`
	Statements []Statement `json:"Statement"`
}

// Version is fixed by the provider policy grammar.
const DocumentVersion = "2012-10-17"

// ToJSON serializes the document to a JSON string
func (d *Document) ToJSON() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FromJSON parses a JSON policy document
func FromJSON(jsonDoc string) (*Document, error) {
	var d Document
	if err := json.Unmarshal([]byte(jsonDoc), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Statement represents a single permission statement in a policy
type Statement struct {
	Sid       string               `json:"Sid,omitempty"`
	Effect    Effect               `json:"Effect"`
	Actions   StringOrSlice        `json:"Action"`
	Resources StringOrSlice        `json:"Resource"`
	Condition map[string]Condition `json:"Condition,omitempty"`
}

// Effect determines whether a statement allows or denies access
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// Condition represents conditional access rules.
// Key is the condition key (s3:prefix, aws:SourceIp, etc.)
type Condition map[string]StringOrSlice

// StringOrSlice handles JSON fields that can be either a string or []string
type StringOrSlice []string

func (s *StringOrSlice) UnmarshalJSON(data []byte) error {
	// Try string first
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = []string{str}
		return nil
	}
	// Try array
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	*s = arr
	return nil
}

func (s StringOrSlice) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}
