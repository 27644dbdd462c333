package actions

import (
	"context"
	"time"

	"github.com/halcyonops/waba-actions/internal/conversation"
	"github.com/halcyonops/waba-actions/internal/message"
	"github.com/halcyonops/waba-actions/internal/notify"
	"github.com/halcyonops/waba-actions/internal/payment"
	"github.com/halcyonops/waba-actions/internal/profile"
	"github.com/halcyonops/waba-actions/internal/template"
)

type mockMessages struct {
	create               func(ctx context.Context, msg *message.Item) error
	get                  func(ctx context.Context, messageID string) (*message.Item, error)
	updateDeliveryStatus func(ctx context.Context, messageID string, status message.DeliveryStatus, at time.Time) error
	queryByConversation  func(ctx context.Context, conversationPK string, limit int32) ([]*message.Item, error)
	queryBySender        func(ctx context.Context, senderID string, limit int32) ([]*message.Item, error)
}

func (m *mockMessages) Create(ctx context.Context, msg *message.Item) error {
	return m.create(ctx, msg)
}
func (m *mockMessages) Get(ctx context.Context, messageID string) (*message.Item, error) {
	return m.get(ctx, messageID)
}
func (m *mockMessages) UpdateDeliveryStatus(ctx context.Context, messageID string, status message.DeliveryStatus, at time.Time) error {
	return m.updateDeliveryStatus(ctx, messageID, status, at)
}
func (m *mockMessages) QueryByConversation(ctx context.Context, conversationPK string, limit int32) ([]*message.Item, error) {
	return m.queryByConversation(ctx, conversationPK, limit)
}
func (m *mockMessages) QueryBySender(ctx context.Context, senderID string, limit int32) ([]*message.Item, error) {
	return m.queryBySender(ctx, senderID, limit)
}

type mockConversations struct {
	get           func(ctx context.Context, phoneRef, counterpartID string) (*conversation.Item, error)
	recordMessage func(ctx context.Context, update conversation.MessageUpdate) (*conversation.Item, error)
	markRead      func(ctx context.Context, phoneRef, counterpartID string) error
	listByWaba    func(ctx context.Context, wabaID string, limit int32) ([]*conversation.Item, error)
}

func (m *mockConversations) Get(ctx context.Context, phoneRef, counterpartID string) (*conversation.Item, error) {
	return m.get(ctx, phoneRef, counterpartID)
}
func (m *mockConversations) RecordMessage(ctx context.Context, update conversation.MessageUpdate) (*conversation.Item, error) {
	return m.recordMessage(ctx, update)
}
func (m *mockConversations) MarkRead(ctx context.Context, phoneRef, counterpartID string) error {
	return m.markRead(ctx, phoneRef, counterpartID)
}
func (m *mockConversations) ListByWaba(ctx context.Context, wabaID string, limit int32) ([]*conversation.Item, error) {
	return m.listByWaba(ctx, wabaID, limit)
}

type mockSender struct {
	send        func(ctx context.Context, originationPhoneID string, payload []byte) (string, error)
	uploadMedia func(ctx context.Context, originationPhoneID, bucket, key string) (string, error)
	fetchMedia  func(ctx context.Context, originationPhoneID, mediaID, bucket, key string) error
}

func (m *mockSender) Send(ctx context.Context, originationPhoneID string, payload []byte) (string, error) {
	return m.send(ctx, originationPhoneID, payload)
}
func (m *mockSender) UploadMedia(ctx context.Context, originationPhoneID, bucket, key string) (string, error) {
	return m.uploadMedia(ctx, originationPhoneID, bucket, key)
}
func (m *mockSender) FetchMedia(ctx context.Context, originationPhoneID, mediaID, bucket, key string) error {
	return m.fetchMedia(ctx, originationPhoneID, mediaID, bucket, key)
}

type mockTemplates struct {
	create       func(ctx context.Context, tmpl *template.Item) error
	get          func(ctx context.Context, wabaID, name, lang string) (*template.Item, error)
	updateStatus func(ctx context.Context, wabaID, name, lang string, status template.Status, reason string) error
	listByWaba   func(ctx context.Context, wabaID string) ([]*template.Item, error)
	del          func(ctx context.Context, wabaID, name, lang string) error
}

func (m *mockTemplates) Create(ctx context.Context, tmpl *template.Item) error {
	return m.create(ctx, tmpl)
}
func (m *mockTemplates) Get(ctx context.Context, wabaID, name, lang string) (*template.Item, error) {
	return m.get(ctx, wabaID, name, lang)
}
func (m *mockTemplates) UpdateStatus(ctx context.Context, wabaID, name, lang string, status template.Status, reason string) error {
	return m.updateStatus(ctx, wabaID, name, lang, status, reason)
}
func (m *mockTemplates) ListByWaba(ctx context.Context, wabaID string) ([]*template.Item, error) {
	return m.listByWaba(ctx, wabaID)
}
func (m *mockTemplates) Delete(ctx context.Context, wabaID, name, lang string) error {
	return m.del(ctx, wabaID, name, lang)
}

type mockPayments struct {
	createPayment       func(ctx context.Context, p *payment.Payment) error
	getPayment          func(ctx context.Context, paymentID string) (*payment.Payment, error)
	updatePaymentStatus func(ctx context.Context, paymentID string, status payment.Status, reason string) (*payment.Payment, error)
	createRefund        func(ctx context.Context, r *payment.Refund) error
	createOrder         func(ctx context.Context, o *payment.Order) error
	listByStatus        func(ctx context.Context, wabaID string, status payment.Status, limit int32) ([]*payment.Payment, error)
}

func (m *mockPayments) CreatePayment(ctx context.Context, p *payment.Payment) error {
	return m.createPayment(ctx, p)
}
func (m *mockPayments) GetPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	return m.getPayment(ctx, paymentID)
}
func (m *mockPayments) UpdatePaymentStatus(ctx context.Context, paymentID string, status payment.Status, reason string) (*payment.Payment, error) {
	return m.updatePaymentStatus(ctx, paymentID, status, reason)
}
func (m *mockPayments) CreateRefund(ctx context.Context, r *payment.Refund) error {
	return m.createRefund(ctx, r)
}
func (m *mockPayments) CreateOrder(ctx context.Context, o *payment.Order) error {
	return m.createOrder(ctx, o)
}
func (m *mockPayments) ListByStatus(ctx context.Context, wabaID string, status payment.Status, limit int32) ([]*payment.Payment, error) {
	return m.listByStatus(ctx, wabaID, status, limit)
}

type mockMedia struct {
	put         func(ctx context.Context, key string, body []byte, contentType string) error
	get         func(ctx context.Context, key string) ([]byte, error)
	del         func(ctx context.Context, key string) error
	uploadURL   func(ctx context.Context, key string, ttl time.Duration) (string, error)
	downloadURL func(ctx context.Context, key string, ttl time.Duration) (string, error)
}

func (m *mockMedia) Put(ctx context.Context, key string, body []byte, contentType string) error {
	return m.put(ctx, key, body, contentType)
}
func (m *mockMedia) Get(ctx context.Context, key string) ([]byte, error) {
	return m.get(ctx, key)
}
func (m *mockMedia) Delete(ctx context.Context, key string) error {
	return m.del(ctx, key)
}
func (m *mockMedia) UploadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return m.uploadURL(ctx, key, ttl)
}
func (m *mockMedia) DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return m.downloadURL(ctx, key, ttl)
}

type mockMailer struct {
	sendAlert func(ctx context.Context, to []string, subject, body string) error
}

func (m *mockMailer) SendAlert(ctx context.Context, to []string, subject, body string) error {
	return m.sendAlert(ctx, to, subject, body)
}

type mockPublisher struct {
	publish func(ctx context.Context, event notify.Event) error
}

func (m *mockPublisher) Publish(ctx context.Context, event notify.Event) error {
	return m.publish(ctx, event)
}

type mockForwarder struct {
	forward func(ctx context.Context, body []byte, delay time.Duration) error
}

func (m *mockForwarder) Forward(ctx context.Context, body []byte, delay time.Duration) error {
	return m.forward(ctx, body, delay)
}

type mockProfiles struct {
	putBusinessProfile   func(ctx context.Context, p *profile.BusinessProfile) error
	getBusinessProfile   func(ctx context.Context, tenantID string) (*profile.BusinessProfile, error)
	applyBusinessProfile func(ctx context.Context, tenantID, ackBy string) error
	putWelcomeMessage    func(ctx context.Context, w *profile.WelcomeMessage) error
	getWelcomeMessage    func(ctx context.Context, tenantID string) (*profile.WelcomeMessage, error)
	putMenu              func(ctx context.Context, m *profile.Menu) error
	getMenu              func(ctx context.Context, tenantID, name string) (*profile.Menu, error)
	putPaymentConfig     func(ctx context.Context, c *profile.PaymentConfig) error
}

func (m *mockProfiles) PutBusinessProfile(ctx context.Context, p *profile.BusinessProfile) error {
	return m.putBusinessProfile(ctx, p)
}
func (m *mockProfiles) GetBusinessProfile(ctx context.Context, tenantID string) (*profile.BusinessProfile, error) {
	return m.getBusinessProfile(ctx, tenantID)
}
func (m *mockProfiles) ApplyBusinessProfile(ctx context.Context, tenantID, ackBy string) error {
	return m.applyBusinessProfile(ctx, tenantID, ackBy)
}
func (m *mockProfiles) PutWelcomeMessage(ctx context.Context, w *profile.WelcomeMessage) error {
	return m.putWelcomeMessage(ctx, w)
}
func (m *mockProfiles) GetWelcomeMessage(ctx context.Context, tenantID string) (*profile.WelcomeMessage, error) {
	return m.getWelcomeMessage(ctx, tenantID)
}
func (m *mockProfiles) PutMenu(ctx context.Context, menu *profile.Menu) error {
	return m.putMenu(ctx, menu)
}
func (m *mockProfiles) GetMenu(ctx context.Context, tenantID, name string) (*profile.Menu, error) {
	return m.getMenu(ctx, tenantID, name)
}
func (m *mockProfiles) PutPaymentConfig(ctx context.Context, c *profile.PaymentConfig) error {
	return m.putPaymentConfig(ctx, c)
}
