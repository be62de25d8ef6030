// Package classifier provides the reply classifiers the engine can be wired
// to: an HTTP client for an external conversation service, and a Bedrock
// model that answers with the same JSON contract.
package classifier
