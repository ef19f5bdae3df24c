package oauthstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore backs GrantStore, TokenStore, and ApprovalStore with etcd
// leases: each record's TTL (spec §4.2) maps directly onto a lease's TTL
// instead of a scheduled sweep, so expiry is enforced by etcd itself.
type EtcdStore struct {
	client *clientv3.Client
}

// NewEtcdStore wraps an existing etcd client.
func NewEtcdStore(client *clientv3.Client) *EtcdStore {
	return &EtcdStore{client: client}
}

func grantKey(grantID string) string       { return "grant:" + grantID }
func tokenKey(tokenID string) string        { return "token:" + tokenID }
func approvalKeyEtcd(userID, clientID string) string { return "approval:" + userID + ":" + clientID }

func (s *EtcdStore) putWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	if ttl <= 0 {
		_, err = s.client.Put(ctx, key, string(b))
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		return nil
	}

	lease, err := s.client.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("grant lease for %s: %w", key, err)
	}
	if _, err := s.client.Put(ctx, key, string(b), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *EtcdStore) get(ctx context.Context, key string, out any) error {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(resp.Kvs[0].Value, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *EtcdStore) delete(ctx context.Context, key string) error {
	if _, err := s.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// --- GrantStore ---

func (s *EtcdStore) PutGrant(ctx context.Context, g *Grant) error {
	return s.putWithTTL(ctx, grantKey(g.ID), g, 0)
}

func (s *EtcdStore) GetGrant(ctx context.Context, grantID string) (*Grant, error) {
	var g Grant
	if err := s.get(ctx, grantKey(grantID), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ConsumeAuthCode performs a read-modify-write under an etcd transaction so
// that two concurrent exchanges of the same code can't both succeed: the
// transaction only commits if the grant's revision hasn't changed since the
// read, per the "exactly one unconsumed auth code" invariant.
func (s *EtcdStore) ConsumeAuthCode(ctx context.Context, authCodeID string) (*Grant, error) {
	// Auth codes are looked up by scanning the grant namespace for a
	// matching AuthCodeID; this is bounded by outstanding-grant count and
	// acceptable given the 10-minute auth code TTL keeps that count small.
	resp, err := s.client.Get(ctx, "grant:", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("scan grants: %w", err)
	}

	for _, kv := range resp.Kvs {
		var g Grant
		if err := json.Unmarshal(kv.Value, &g); err != nil {
			continue
		}
		if g.AuthCodeID != authCodeID {
			continue
		}

		before := g
		g.AuthCodeID = ""
		g.AuthCodeWrappedKey = nil
		updated, err := json.Marshal(&g)
		if err != nil {
			return nil, fmt.Errorf("marshal consumed grant: %w", err)
		}

		txn := s.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(string(kv.Key)), "=", kv.ModRevision)).
			Then(clientv3.OpPut(string(kv.Key), string(updated)))
		txResp, err := txn.Commit()
		if err != nil {
			return nil, fmt.Errorf("consume auth code %s: %w", authCodeID, err)
		}
		if !txResp.Succeeded {
			return nil, ErrCASFailed
		}
		return &before, nil
	}
	return nil, ErrNotFound
}

func (s *EtcdStore) DeleteGrant(ctx context.Context, grantID string) error {
	return s.delete(ctx, grantKey(grantID))
}

// --- TokenStore ---

func (s *EtcdStore) PutToken(ctx context.Context, t *Token) error {
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second // already-expired token still needs a lease that fires promptly
	}
	return s.putWithTTL(ctx, tokenKey(t.ID), t, ttl)
}

func (s *EtcdStore) GetToken(ctx context.Context, tokenID string) (*Token, error) {
	var t Token
	if err := s.get(ctx, tokenKey(tokenID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *EtcdStore) DeleteToken(ctx context.Context, tokenID string) error {
	return s.delete(ctx, tokenKey(tokenID))
}

// RotateToken writes newToken and deletes oldTokenID atomically via an etcd
// transaction, satisfying the spec's "old token remains valid if either
// step fails" rotation semantics.
func (s *EtcdStore) RotateToken(ctx context.Context, oldTokenID string, newToken *Token) error {
	if _, err := s.GetToken(ctx, oldTokenID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrCASFailed
		}
		return err
	}

	b, err := json.Marshal(newToken)
	if err != nil {
		return fmt.Errorf("marshal new token: %w", err)
	}

	ttl := time.Until(newToken.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	lease, err := s.client.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("grant lease for new token: %w", err)
	}

	txn := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(tokenKey(oldTokenID)), "!=", "")).
		Then(
			clientv3.OpPut(tokenKey(newToken.ID), string(b), clientv3.WithLease(lease.ID)),
			clientv3.OpDelete(tokenKey(oldTokenID)),
		)
	resp, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("rotate token %s: %w", oldTokenID, err)
	}
	if !resp.Succeeded {
		return ErrCASFailed
	}
	return nil
}

func (s *EtcdStore) DeleteTokensByGrant(ctx context.Context, grantID string) error {
	resp, err := s.client.Get(ctx, "token:", clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("scan tokens: %w", err)
	}
	for _, kv := range resp.Kvs {
		var t Token
		if err := json.Unmarshal(kv.Value, &t); err != nil {
			continue
		}
		if t.GrantID != grantID {
			continue
		}
		if _, err := s.client.Delete(ctx, string(kv.Key)); err != nil {
			return fmt.Errorf("delete token %s: %w", kv.Key, err)
		}
	}
	return nil
}

// --- ApprovalStore ---

func (s *EtcdStore) PutApproval(ctx context.Context, a *Approval) error {
	return s.putWithTTL(ctx, approvalKeyEtcd(a.UserID, a.ClientID), a, ApprovalTTL)
}

func (s *EtcdStore) GetApproval(ctx context.Context, userID, clientID string) (*Approval, error) {
	var a Approval
	if err := s.get(ctx, approvalKeyEtcd(userID, clientID), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// EtcdGrantStore adapts EtcdStore to the GrantStore interface.
type EtcdGrantStore struct{ *EtcdStore }

func (s EtcdGrantStore) Put(ctx context.Context, g *Grant) error { return s.PutGrant(ctx, g) }
func (s EtcdGrantStore) Get(ctx context.Context, grantID string) (*Grant, error) {
	return s.GetGrant(ctx, grantID)
}
func (s EtcdGrantStore) Delete(ctx context.Context, grantID string) error {
	return s.DeleteGrant(ctx, grantID)
}

// EtcdTokenStore adapts EtcdStore to the TokenStore interface.
type EtcdTokenStore struct{ *EtcdStore }

func (s EtcdTokenStore) Put(ctx context.Context, t *Token) error { return s.PutToken(ctx, t) }
func (s EtcdTokenStore) Get(ctx context.Context, tokenID string) (*Token, error) {
	return s.GetToken(ctx, tokenID)
}
func (s EtcdTokenStore) Delete(ctx context.Context, tokenID string) error {
	return s.DeleteToken(ctx, tokenID)
}
func (s EtcdTokenStore) Rotate(ctx context.Context, oldTokenID string, newToken *Token) error {
	return s.RotateToken(ctx, oldTokenID, newToken)
}
func (s EtcdTokenStore) DeleteByGrant(ctx context.Context, grantID string) error {
	return s.DeleteTokensByGrant(ctx, grantID)
}

// EtcdApprovalStore adapts EtcdStore to the ApprovalStore interface.
type EtcdApprovalStore struct{ *EtcdStore }

func (s EtcdApprovalStore) Put(ctx context.Context, a *Approval) error { return s.PutApproval(ctx, a) }
func (s EtcdApprovalStore) Get(ctx context.Context, userID, clientID string) (*Approval, error) {
	return s.GetApproval(ctx, userID, clientID)
}

var (
	_ GrantStore    = EtcdGrantStore{}
	_ TokenStore    = EtcdTokenStore{}
	_ ApprovalStore = EtcdApprovalStore{}
)
