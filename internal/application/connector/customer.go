package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/reconcile"
	"github.com/erp/connector/internal/domain/reference"
	"github.com/erp/connector/internal/domain/validation"
	"github.com/erp/connector/internal/infrastructure/remote"
)

// Customer function names.
const (
	CheckForCustomer        = "CheckForCustomer"
	CheckForCustomerAddress = "CheckForCustomerAddress"
	CheckForCustomerContact = "CheckForCustomerContact"
	InsertCustomer          = "InsertCustomer"
	InsertCustomerAddress   = "InsertCustomerAddress"
	UpdateCustomerAddress   = "UpdateCustomerAddress"
	UpdateCustomerContact   = "UpdateCustomerContact"
)

const (
	entityCustomer        = "customer"
	entityCustomerAddress = "customerAddress"
	entityCustomerContact = "customerContact"
)

// writePolicy echoes the statuses a create call can legitimately answer with.
var writePolicy = integration.NewStatusPolicy(
	http.StatusCreated, http.StatusBadRequest, http.StatusTooManyRequests, http.StatusInternalServerError,
)

func customerFunctions() []*definition {
	customerID := validation.Field("customerRemoteID", validation.Identifier)
	return []*definition{
		{
			name:       CheckForCustomer,
			references: []string{entityCustomer},
			settings:   remoteSettings(),
			auth:       remoteAuth(),
			handle:     checkForCustomer,
		},
		{
			name:       CheckForCustomerAddress,
			references: []string{entityCustomerAddress},
			settings:   remoteSettings(),
			auth:       remoteAuth(),
			doc:        []validation.Rule{validation.Field("CustomerId", validation.Identifier)},
			policy:     integration.NewStatusPolicy(http.StatusConflict),
			handle: searchCustomerChildren("/Customers(%s)/Addresses", entityCustomerAddress, "addresses"),
		},
		{
			name:       CheckForCustomerContact,
			references: []string{entityCustomerContact},
			settings:   remoteSettings(),
			auth:       remoteAuth(),
			doc:        []validation.Rule{validation.Field("CustomerId", validation.Identifier)},
			handle: searchCustomerChildren("/Customers(%s)/ContactMethods", entityCustomerContact, "contact methods"),
		},
		{
			name:       InsertCustomer,
			references: []string{entityCustomer},
			settings:   remoteSettings(),
			auth:       remoteAuth(),
			policy:     writePolicy,
			handle:     insertCustomer,
		},
		{
			name:       InsertCustomerAddress,
			references: []string{entityCustomerAddress},
			settings:   remoteSettings(),
			auth:       remoteAuth(),
			payload:    []validation.Rule{customerID},
			policy:     writePolicy,
			handle:     insertCustomerAddress,
		},
		{
			name:       UpdateCustomerAddress,
			references: []string{entityCustomerAddress},
			settings:   remoteSettings(),
			auth:       remoteAuth(),
			payload:    []validation.Rule{customerID, validation.Field("customerAddressRemoteID", validation.Identifier)},
			handle:     updateCustomerChild("/Customers(%s)/Addresses(%s)", entityCustomerAddress),
		},
		{
			name:       UpdateCustomerContact,
			references: []string{entityCustomerContact},
			settings:   remoteSettings(),
			auth:       remoteAuth(),
			payload:    []validation.Rule{customerID, validation.Field("customerContactRemoteID", validation.Identifier)},
			handle:     updateCustomerChild("/Customers(%s)/ContactMethods(%s)", entityCustomerContact),
		},
	}
}

// odataLiteral quotes s as an OData string literal.
func odataLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// checkForCustomer searches by the customer's business reference values; the
// platform does the matching, so the result count decides the outcome.
func checkForCustomer(ctx context.Context, req *Request, res *Result) error {
	ex := req.Extractor(entityCustomer)
	values, err := ex.Values(req.Doc)
	if err != nil {
		return err
	}
	criteria := make([]string, len(values))
	for i, v := range values {
		criteria[i] = "Criteria eq " + odataLiteral(reference.Format(v))
	}

	req.Logger.Info("Searching for customer")
	resp, err := req.Remote.Get(ctx, req.Endpoints.Company(remote.APICRM, "/CustomerSearch"),
		url.Values{"$filter": {strings.Join(criteria, " and ")}})
	if err != nil {
		return err
	}
	res.Endpoint(resp.StatusCode, "")

	records, err := reconcile.Records(resp.Body)
	if err != nil {
		return err
	}
	result, err := reconcile.Classify(records, ex)
	if err != nil {
		return err
	}
	return reportMatch(req, res, result, entityCustomer, "customers")
}

// searchCustomerChildren lists a collection below the customer named by
// doc.CustomerId and reconciles it against doc.
func searchCustomerChildren(format, entity, subject string) handler {
	return func(ctx context.Context, req *Request, res *Result) error {
		req.Logger.Info("Searching for existing " + subject)
		u := req.Endpoints.Company(remote.APICRM, format, reference.Format(req.Doc["CustomerId"]))
		resp, err := req.Remote.Get(ctx, u, nil)
		if err != nil {
			return err
		}
		res.Endpoint(resp.StatusCode, "")

		result, err := reconcile.Reconcile(resp.Body, req.Doc, req.Extractor(entity))
		if err != nil {
			return err
		}
		return reportMatch(req, res, result, entity, subject)
	}
}

func reportMatch(req *Request, res *Result, result *reconcile.Result, entity, subject string) error {
	switch result.Status {
	case reconcile.Found:
		req.Logger.Info("Found a matching record")
		res.Set(entity+"RemoteID", result.RemoteID)
		res.Set(entity+"BusinessReference", result.Reference)
	case reconcile.NotFound:
		req.Logger.Info("No matching record found")
	case reconcile.Conflict:
		return result.Err(subject)
	}
	res.Status(result.StatusCode())
	return nil
}

func insertCustomer(ctx context.Context, req *Request, res *Result) error {
	req.Logger.Info("Posting customer")
	resp, err := req.Remote.Post(ctx, req.Endpoints.Company(remote.APICRM, "/Customers"), req.Doc)
	if err != nil {
		return err
	}
	return reportWrite(req, res, resp, entityCustomer)
}

func insertCustomerAddress(ctx context.Context, req *Request, res *Result) error {
	req.Logger.Info("Posting customer address")
	u := req.Endpoints.Company(remote.APICRM, "/Customers(%s)/Addresses", reference.Format(req.PayloadValue("customerRemoteID")))
	resp, err := req.Remote.Post(ctx, u, req.Doc)
	if err != nil {
		return err
	}
	return reportWrite(req, res, resp, entityCustomerAddress)
}

// updateCustomerChild replaces the record <entity>RemoteID below payload.customerRemoteID.
func updateCustomerChild(format, entity string) handler {
	return func(ctx context.Context, req *Request, res *Result) error {
		req.Logger.Info("Updating existing " + entity)
		u := req.Endpoints.Company(remote.APICRM, format,
			reference.Format(req.PayloadValue("customerRemoteID")),
			reference.Format(req.PayloadValue(entity+"RemoteID")))
		resp, err := req.Remote.Put(ctx, u, req.Doc)
		if err != nil {
			return err
		}
		return reportWrite(req, res, resp, entity)
	}
}

// reportWrite reports the record returned by a create or update with the remote status.
func reportWrite(req *Request, res *Result, resp *integration.RemoteResponse, entity string) error {
	res.Endpoint(resp.StatusCode, "")
	record, err := asObject(resp, entity)
	if err != nil {
		return err
	}
	id, err := remoteID(record, entity)
	if err != nil {
		return err
	}
	ref, err := req.Reference(entity, record)
	if err != nil {
		return fmt.Errorf("connector: %s business reference: %w", entity, err)
	}
	res.Status(resp.StatusCode)
	res.Set(entity+"RemoteID", id)
	res.Set(entity+"BusinessReference", ref)
	return nil
}
