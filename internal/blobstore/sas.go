package blobstore

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/acctax/taxflow/internal/common"
)

// AccessIssuer produces time-bounded, read-only URLs for stored objects.
type AccessIssuer interface {
	// IssueReadAccess returns a pre-authenticated read URL for the object,
	// valid from validFrom to validUntil. The credential grants no write
	// or delete capability and is never persisted.
	IssueReadAccess(obj Object, validFrom, validUntil time.Time) (string, error)
}

// SASIssuer signs read-only blob SAS URLs with account shared-key
// credentials.
type SASIssuer struct {
	accountName string
	cred        *azblob.SharedKeyCredential
	logger      *slog.Logger
}

func NewSASIssuer(accountName, accountKey string, logger *slog.Logger) (*SASIssuer, error) {
	if accountName == "" || accountKey == "" {
		return nil, common.AccessError("storage signing credentials are not configured", common.ErrInvalidInput)
	}
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, common.AccessError("malformed storage signing credentials", err)
	}
	return &SASIssuer{accountName: accountName, cred: cred, logger: logger}, nil
}

func (i *SASIssuer) IssueReadAccess(obj Object, validFrom, validUntil time.Time) (string, error) {
	perms := sas.BlobPermissions{Read: true}
	qp, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     validFrom.UTC(),
		ExpiryTime:    validUntil.UTC(),
		Permissions:   perms.String(),
		ContainerName: obj.Container,
		BlobName:      obj.Name,
	}.SignWithSharedKey(i.cred)
	if err != nil {
		i.logger.Error("blobstore.sas.sign_failed", "path", obj.Path, "error", err)
		return "", common.AccessError("sign read access url", err)
	}

	u := fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s?%s",
		i.accountName, obj.Container, obj.Name, qp.Encode())
	i.logger.Debug("blobstore.sas.issued", "path", obj.Path, "expires", validUntil.UTC())
	return u, nil
}
