package response

import "github.com/gin-gonic/gin"

// ErrorBody is the error payload shape shared by every endpoint.
type ErrorBody struct {
	Detail string `json:"detail"`
}

type MessageBody struct {
	Message string `json:"message"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Message(c *gin.Context, message string) {
	c.JSON(200, MessageBody{Message: message})
}

func Error(c *gin.Context, httpStatus int, detail string) {
	c.AbortWithStatusJSON(httpStatus, ErrorBody{Detail: detail})
}
