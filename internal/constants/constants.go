package constants

const (
	//分頁
	DefaultPagingSize int = 10
	DefaultPaging     int = 1
	MaxPagingSize     int = 100
)

// for api auth
type ContextKey string

const (
	AuthorizationHeaderKey  ContextKey = "authorization"
	AuthorizationTypeBearer ContextKey = "bearer"
	AuthorizationUserKey    ContextKey = "authorization_user"
	RequestIDKey            ContextKey = "request_id"
)

// websocket 推播事件名稱
const (
	EventNotificationCreated = "notification.created"
)

// 付款方式，目前只有貨到付款
const (
	PaymentMethodCOD = "COD"
)
