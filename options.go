package wampc

import (
	"reflect"
	"strings"
	"time"
)

// Role is a bitmask of the client roles a session declares in HELLO.
type Role int

const (
	// This client can publish events
	PUBLISHER Role = 1 << iota
	// This client can subscribe to events
	SUBSCRIBER
	// This client can register RPC functions
	CALLEE
	// This client can call RPC functions
	CALLER
	// This client can do all of the above
	ALLROLES = PUBLISHER | SUBSCRIBER | CALLEE | CALLER
)

func (r Role) String() string {
	var names []string
	for _, role := range []Role{PUBLISHER, SUBSCRIBER, CALLEE, CALLER} {
		if r&role == role {
			names = append(names, roleNames[role])
		}
	}
	return strings.Join(names, "|")
}

var roleNames = map[Role]string{
	PUBLISHER:  "publisher",
	SUBSCRIBER: "subscriber",
	CALLEE:     "callee",
	CALLER:     "caller",
}

// Router roles.
const (
	RoleBroker = "broker"
	RoleDealer = "dealer"
)

// Feature names as they appear in the "features" dict of a role.
const (
	FeatureCallCanceling          = "call_canceling"
	FeatureCallTimeout            = "call_timeout"
	FeatureCallerIdentification   = "caller_identification"
	FeaturePatternRegistration    = "pattern_based_registration"
	FeatureProgressiveCallResults = "progressive_call_results"
	FeatureSharedRegistration     = "shared_registration"
	FeatureRegistrationRevocation = "registration_revocation"

	FeaturePatternSubscription  = "pattern_based_subscription"
	FeaturePublisherExclusion   = "publisher_exclusion"
	FeaturePublisherIdent       = "publisher_identification"
	FeatureSubBlackWhiteListing = "subscriber_blackwhite_listing"
	FeatureSubRevocation        = "subscription_revocation"
	FeatureEventHistory         = "event_history"

	FeatureSessionMetaAPI      = "session_meta_api"
	FeatureSubscriptionMetaAPI = "subscription_meta_api"
	FeatureRegistrationMetaAPI = "registration_meta_api"
)

// Feature flags are plain booleans; a flag that is absent on the wire is
// false.

type CallerFeatures struct {
	CallerIdentification   bool `wamp:"caller_identification,omitempty"`
	ProgressiveCallResults bool `wamp:"progressive_call_results,omitempty"`
	CallTimeout            bool `wamp:"call_timeout,omitempty"`
	CallCanceling          bool `wamp:"call_canceling,omitempty"`
}

type CalleeFeatures struct {
	CallerIdentification     bool `wamp:"caller_identification,omitempty"`
	PatternBasedRegistration bool `wamp:"pattern_based_registration,omitempty"`
	SharedRegistration       bool `wamp:"shared_registration,omitempty"`
	ProgressiveCallResults   bool `wamp:"progressive_call_results,omitempty"`
	RegistrationRevocation   bool `wamp:"registration_revocation,omitempty"`
	CallTimeout              bool `wamp:"call_timeout,omitempty"`
	CallCanceling            bool `wamp:"call_canceling,omitempty"`
}

type PublisherFeatures struct {
	PublisherIdentification     bool `wamp:"publisher_identification,omitempty"`
	SubscriberBlackwhiteListing bool `wamp:"subscriber_blackwhite_listing,omitempty"`
	PublisherExclusion          bool `wamp:"publisher_exclusion,omitempty"`
}

type SubscriberFeatures struct {
	PublisherIdentification  bool `wamp:"publisher_identification,omitempty"`
	PatternBasedSubscription bool `wamp:"pattern_based_subscription,omitempty"`
	SubscriptionRevocation   bool `wamp:"subscription_revocation,omitempty"`
}

type BrokerFeatures struct {
	PublisherIdentification     bool `wamp:"publisher_identification,omitempty"`
	PatternBasedSubscription    bool `wamp:"pattern_based_subscription,omitempty"`
	SubscriberBlackwhiteListing bool `wamp:"subscriber_blackwhite_listing,omitempty"`
	PublisherExclusion          bool `wamp:"publisher_exclusion,omitempty"`
	SubscriptionRevocation      bool `wamp:"subscription_revocation,omitempty"`
	EventHistory                bool `wamp:"event_history,omitempty"`
	SessionMetaAPI              bool `wamp:"session_meta_api,omitempty"`
	SubscriptionMetaAPI         bool `wamp:"subscription_meta_api,omitempty"`
}

type DealerFeatures struct {
	CallerIdentification     bool `wamp:"caller_identification,omitempty"`
	PatternBasedRegistration bool `wamp:"pattern_based_registration,omitempty"`
	SharedRegistration       bool `wamp:"shared_registration,omitempty"`
	ProgressiveCallResults   bool `wamp:"progressive_call_results,omitempty"`
	RegistrationRevocation   bool `wamp:"registration_revocation,omitempty"`
	CallTimeout              bool `wamp:"call_timeout,omitempty"`
	CallCanceling            bool `wamp:"call_canceling,omitempty"`
	SessionMetaAPI           bool `wamp:"session_meta_api,omitempty"`
	RegistrationMetaAPI      bool `wamp:"registration_meta_api,omitempty"`
}

type Caller struct {
	Features CallerFeatures `wamp:"features,omitempty"`
}

type Callee struct {
	Features CalleeFeatures `wamp:"features,omitempty"`
}

type Publisher struct {
	Features PublisherFeatures `wamp:"features,omitempty"`
}

type Subscriber struct {
	Features SubscriberFeatures `wamp:"features,omitempty"`
}

type Broker struct {
	Features BrokerFeatures `wamp:"features,omitempty"`
}

type Dealer struct {
	Features DealerFeatures `wamp:"features,omitempty"`
}

// Roles is what a client declares in HELLO. A nil role is not declared and
// the session refuses operations that need it.
type Roles struct {
	Caller     *Caller     `wamp:"caller,omitempty"`
	Callee     *Callee     `wamp:"callee,omitempty"`
	Publisher  *Publisher  `wamp:"publisher,omitempty"`
	Subscriber *Subscriber `wamp:"subscriber,omitempty"`
}

// NewRoles declares the roles in r with no optional features.
func NewRoles(r Role) Roles {
	var roles Roles
	if r&PUBLISHER == PUBLISHER {
		roles.Publisher = &Publisher{}
	}
	if r&SUBSCRIBER == SUBSCRIBER {
		roles.Subscriber = &Subscriber{}
	}
	if r&CALLEE == CALLEE {
		roles.Callee = &Callee{}
	}
	if r&CALLER == CALLER {
		roles.Caller = &Caller{}
	}
	return roles
}

// Has reports whether every role in r is declared.
func (roles Roles) Has(r Role) bool {
	return (r&PUBLISHER == 0 || roles.Publisher != nil) &&
		(r&SUBSCRIBER == 0 || roles.Subscriber != nil) &&
		(r&CALLEE == 0 || roles.Callee != nil) &&
		(r&CALLER == 0 || roles.Caller != nil)
}

// features returns the feature flags of a single declared role.
func (roles Roles) features(r Role) map[string]bool {
	switch r {
	case PUBLISHER:
		if roles.Publisher != nil {
			return flags(roles.Publisher.Features)
		}
	case SUBSCRIBER:
		if roles.Subscriber != nil {
			return flags(roles.Subscriber.Features)
		}
	case CALLEE:
		if roles.Callee != nil {
			return flags(roles.Callee.Features)
		}
	case CALLER:
		if roles.Caller != nil {
			return flags(roles.Caller.Features)
		}
	}
	return nil
}

// Dict returns the wire form of the roles, e.g.
// {"subscriber": {"features": {"pattern_based_subscription": true}}}.
func (roles Roles) Dict() map[string]interface{} {
	m := make(map[string]interface{})
	add := func(name string, present bool, features interface{}) {
		if !present {
			return
		}
		f := make(map[string]interface{})
		for k, v := range flags(features) {
			f[k] = v
		}
		m[name] = map[string]interface{}{"features": f}
	}
	if roles.Caller != nil {
		add("caller", true, roles.Caller.Features)
	}
	if roles.Callee != nil {
		add("callee", true, roles.Callee.Features)
	}
	if roles.Publisher != nil {
		add("publisher", true, roles.Publisher.Features)
	}
	if roles.Subscriber != nil {
		add("subscriber", true, roles.Subscriber.Features)
	}
	return m
}

// RouterRoles is what the router declares in WELCOME.
type RouterRoles struct {
	Broker *Broker `wamp:"broker,omitempty"`
	Dealer *Dealer `wamp:"dealer,omitempty"`
}

func (roles RouterRoles) features(role string) map[string]bool {
	switch role {
	case RoleBroker:
		if roles.Broker != nil {
			return flags(roles.Broker.Features)
		}
	case RoleDealer:
		if roles.Dealer != nil {
			return flags(roles.Dealer.Features)
		}
	}
	return nil
}

func (roles RouterRoles) has(role string) bool {
	switch role {
	case RoleBroker:
		return roles.Broker != nil
	case RoleDealer:
		return roles.Dealer != nil
	}
	return false
}

// flags lists the set flags of a features struct by wire name.
func flags(features interface{}) map[string]bool {
	v := reflect.ValueOf(features)
	t := v.Type()
	out := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		if v.Field(i).Kind() != reflect.Bool || !v.Field(i).Bool() {
			continue
		}
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("wamp"), ",")
		out[name] = true
	}
	return out
}

// AuthFunc takes the HELLO details and CHALLENGE extra and returns the
// signature and the AUTHENTICATE extra dict.
type AuthFunc func(hello map[string]interface{}, challenge map[string]interface{}) (string, map[string]interface{}, error)

// HelloDetails is the Details dict of HELLO.
type HelloDetails struct {
	Roles       Roles
	Agent       string
	AuthID      string
	AuthMethods []string
	AuthExtra   map[string]interface{}
}

// Dict returns the wire form of the details.
func (d HelloDetails) Dict() map[string]interface{} {
	m := map[string]interface{}{"roles": d.Roles.Dict()}
	if d.Agent != "" {
		m["agent"] = d.Agent
	}
	if d.AuthID != "" {
		m["authid"] = d.AuthID
	}
	if len(d.AuthMethods) > 0 {
		methods := make([]interface{}, len(d.AuthMethods))
		for i := range d.AuthMethods {
			methods[i] = d.AuthMethods[i]
		}
		m["authmethods"] = methods
	}
	if len(d.AuthExtra) > 0 {
		m["authextra"] = d.AuthExtra
	}
	return m
}

// WelcomeDetails is the decoded Details dict of WELCOME.
type WelcomeDetails struct {
	Roles        RouterRoles `wamp:"roles,omitempty"`
	Agent        string      `wamp:"agent,omitempty"`
	AuthID       string      `wamp:"authid,omitempty"`
	AuthRole     string      `wamp:"authrole,omitempty"`
	AuthMethod   string      `wamp:"authmethod,omitempty"`
	AuthProvider string      `wamp:"authprovider,omitempty"`

	// Raw is the dict exactly as received.
	Raw map[string]interface{} `wamp:"-"`
}

// parseWelcomeDetails reads a WELCOME Details dict. Roles and features are
// read leniently: unknown keys are ignored, and a feature counts only if its
// value is literally true.
func parseWelcomeDetails(raw map[string]interface{}) *WelcomeDetails {
	d := &WelcomeDetails{Raw: raw}
	strs := make(map[string]interface{})
	for _, k := range []string{"agent", "authid", "authrole", "authmethod", "authprovider"} {
		if s, ok := raw[k].(string); ok {
			strs[k] = s
		}
	}
	// inputs are filtered to the target types, so decoding cannot fail
	_ = decodeInto(d, strs, "details")

	roles, _ := raw["roles"].(map[string]interface{})
	for name, decl := range roles {
		var target interface{}
		switch name {
		case RoleBroker:
			d.Roles.Broker = new(Broker)
			target = &d.Roles.Broker.Features
		case RoleDealer:
			d.Roles.Dealer = new(Dealer)
			target = &d.Roles.Dealer.Features
		default:
			continue
		}
		declMap, _ := decl.(map[string]interface{})
		features, _ := declMap["features"].(map[string]interface{})
		set := make(map[string]interface{})
		for k, v := range features {
			if b, ok := v.(bool); ok && b {
				set[k] = true
			}
		}
		_ = decodeInto(target, set, "details.roles."+name+".features")
	}
	return d
}

// PublishOptions tune a single publication. Options that need an advanced
// profile feature are refused locally unless both peers declared it.
type PublishOptions struct {
	// Acknowledge asks the broker for a PUBLISHED reply and makes the publish
	// wait for it.
	Acknowledge bool
	// ExcludeMe set to false delivers the event back to this session too.
	// Needs publisher_exclusion.
	ExcludeMe *bool
	// Exclude and Eligible filter receivers by session id.
	// Need subscriber_blackwhite_listing.
	Exclude  []ID
	Eligible []ID
	// DiscloseMe asks the broker to reveal this session to subscribers.
	// Needs publisher_identification.
	DiscloseMe bool
}

func (o *PublishOptions) dict() map[string]interface{} {
	m := make(map[string]interface{})
	if o == nil {
		return m
	}
	if o.Acknowledge {
		m["acknowledge"] = true
	}
	if o.ExcludeMe != nil {
		m["exclude_me"] = *o.ExcludeMe
	}
	if len(o.Exclude) > 0 {
		m["exclude"] = idList(o.Exclude)
	}
	if len(o.Eligible) > 0 {
		m["eligible"] = idList(o.Eligible)
	}
	if o.DiscloseMe {
		m["disclose_me"] = true
	}
	return m
}

func (o *PublishOptions) required() []string {
	if o == nil {
		return nil
	}
	var f []string
	if o.ExcludeMe != nil && !*o.ExcludeMe {
		f = append(f, FeaturePublisherExclusion)
	}
	if len(o.Exclude) > 0 || len(o.Eligible) > 0 {
		f = append(f, FeatureSubBlackWhiteListing)
	}
	if o.DiscloseMe {
		f = append(f, FeaturePublisherIdent)
	}
	return f
}

// Topic matching policies.
const (
	MatchExact    = "exact"
	MatchPrefix   = "prefix"
	MatchWildcard = "wildcard"
)

// SubscribeOptions tune a subscription.
type SubscribeOptions struct {
	// Match is MatchExact (default), MatchPrefix or MatchWildcard. Anything
	// but exact needs pattern_based_subscription.
	Match string
}

func (o *SubscribeOptions) dict() map[string]interface{} {
	m := make(map[string]interface{})
	if o != nil && o.Match != "" && o.Match != MatchExact {
		m["match"] = o.Match
	}
	return m
}

func (o *SubscribeOptions) required() []string {
	if o != nil && o.Match != "" && o.Match != MatchExact {
		return []string{FeaturePatternSubscription}
	}
	return nil
}

// CallOptions tune a single call.
type CallOptions struct {
	// Timeout asks the dealer to cancel the call after the given duration.
	// Needs call_timeout.
	Timeout time.Duration
	// DiscloseMe reveals this session to the callee. Needs
	// caller_identification.
	DiscloseMe bool
}

func (o *CallOptions) dict() map[string]interface{} {
	m := make(map[string]interface{})
	if o == nil {
		return m
	}
	if o.Timeout > 0 {
		m["timeout"] = o.Timeout.Milliseconds()
	}
	if o.DiscloseMe {
		m["disclose_me"] = true
	}
	return m
}

func (o *CallOptions) required() []string {
	if o == nil {
		return nil
	}
	var f []string
	if o.Timeout > 0 {
		f = append(f, FeatureCallTimeout)
	}
	if o.DiscloseMe {
		f = append(f, FeatureCallerIdentification)
	}
	return f
}

// RegisterOptions tune a registration.
type RegisterOptions struct {
	// Match is MatchExact (default), MatchPrefix or MatchWildcard. Needs
	// pattern_based_registration when not exact.
	Match string
	// Invoke is the shared registration policy ("single", "roundrobin",
	// "random", "first", "last"). Needs shared_registration when not single.
	Invoke string
	// DiscloseCaller asks the dealer to reveal callers. Needs
	// caller_identification.
	DiscloseCaller bool
}

func (o *RegisterOptions) dict() map[string]interface{} {
	m := make(map[string]interface{})
	if o == nil {
		return m
	}
	if o.Match != "" && o.Match != MatchExact {
		m["match"] = o.Match
	}
	if o.Invoke != "" && o.Invoke != "single" {
		m["invoke"] = o.Invoke
	}
	if o.DiscloseCaller {
		m["disclose_caller"] = true
	}
	return m
}

func (o *RegisterOptions) required() []string {
	if o == nil {
		return nil
	}
	var f []string
	if o.Match != "" && o.Match != MatchExact {
		f = append(f, FeaturePatternRegistration)
	}
	if o.Invoke != "" && o.Invoke != "single" {
		f = append(f, FeatureSharedRegistration)
	}
	if o.DiscloseCaller {
		f = append(f, FeatureCallerIdentification)
	}
	return f
}

func idList(ids []ID) []interface{} {
	l := make([]interface{}, len(ids))
	for i := range ids {
		l[i] = uint64(ids[i])
	}
	return l
}

// routerRole is the router role that serves a client role.
func routerRole(r Role) string {
	if r == PUBLISHER || r == SUBSCRIBER {
		return RoleBroker
	}
	return RoleDealer
}

// negotiate checks that role r, and every feature in required, was declared
// by both the client and the router. It never touches the wire.
func negotiate(client Roles, router RouterRoles, r Role, required []string) error {
	if !client.Has(r) {
		return &RoleError{Role: roleNames[r]}
	}
	rr := routerRole(r)
	if !router.has(rr) {
		return &RoleError{Role: rr, Router: true}
	}
	if len(required) == 0 {
		return nil
	}
	local, remote := client.features(r), router.features(rr)
	for _, f := range required {
		if !local[f] {
			return &FeatureError{Role: roleNames[r], Feature: f}
		}
		if !remote[f] {
			return &FeatureError{Role: rr, Feature: f, Router: true}
		}
	}
	return nil
}
