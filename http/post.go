package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"

	"microblog/auth"
	"microblog/domain"
	"microblog/errs"
)

func (s *Server) registerPostRoutes(r *mux.Router) {
	r.HandleFunc("/new/", s.requireAuth(auth.ActionCreatePost, s.handleNewPostForm)).Methods("GET")
	r.HandleFunc("/new/", s.requireAuth(auth.ActionCreatePost, s.handleCreatePost)).Methods("POST")
	r.HandleFunc("/{username}/{post_id:[0-9]+}/", s.requireAuth(auth.ActionViewPost, s.handlePost)).Methods("GET")
	r.HandleFunc("/{username}/{post_id:[0-9]+}/edit/", s.requireAuth(auth.ActionEditPost, s.handleEditPostForm)).Methods("GET")
	r.HandleFunc("/{username}/{post_id:[0-9]+}/edit/", s.requireAuth(auth.ActionEditPost, s.handleEditPost)).Methods("POST")
	r.HandleFunc("/{username}/{post_id:[0-9]+}/comment/", s.requireAuth(auth.ActionCreateComment, s.handleCreateComment)).Methods("POST")
}

// postFormValues echoes a submitted post form. Images can't be echoed.
type postFormValues struct {
	Text  string `json:"text"`
	Group string `json:"group"`
}

// postFormPage is the view of the create and edit forms.
type postFormPage struct {
	Form      postFormValues `json:"form"`
	Groups    []domain.Group `json:"groups"`
	IsEdit    bool           `json:"is_edit"`
	Post      *domain.Post   `json:"post,omitempty"`
	CSRFToken string         `json:"csrf_token,omitempty"`
}

// handleNewPostForm handles "GET /new/".
func (s *Server) handleNewPostForm(w http.ResponseWriter, r *http.Request) {
	groups, err := s.gs.All(r.Context())
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, postFormPage{Groups: groups, CSRFToken: csrf.Token(r)})
}

// handleCreatePost handles "POST /new/". The signed-in user becomes the author.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	form, values, closeUpload, err := s.readPostForm(w, r)
	defer closeUpload()
	if err != nil {
		errs.ReturnFormError(w, r, err, values)
		return
	}
	if _, err := s.ps.Create(r.Context(), auth.GetUser(r.Context()), form); err != nil {
		if errs.ErrorCode(err) == errs.EINVALID {
			errs.ReturnFormError(w, r, err, values)
			return
		}
		s.handleError(w, r, err)
		return
	}
	s.invalidateFeed(r)
	http.Redirect(w, r, "/", http.StatusFound)
}

// handlePost handles "GET /{username}/{post_id}/".
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	post, err := s.postFromRoute(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	comments, err := s.cs.ByPost(r.Context(), post.ID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, domain.PostView{Post: post, Author: &post.Author, Comments: comments})
}

// handleEditPostForm handles "GET /{username}/{post_id}/edit/". Anyone but the
// author is sent to the post instead.
func (s *Server) handleEditPostForm(w http.ResponseWriter, r *http.Request) {
	post, err := s.postFromRoute(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if !auth.CanViewEdit(auth.GetUser(r.Context()), post) {
		http.Redirect(w, r, postURL(post.Author.Username, post.ID), http.StatusFound)
		return
	}
	groups, err := s.gs.All(r.Context())
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	values := postFormValues{Text: post.Text}
	if post.GroupID != nil {
		values.Group = strconv.Itoa(*post.GroupID)
	}
	writeJSON(w, r, http.StatusOK, postFormPage{
		Form:      values,
		Groups:    groups,
		IsEdit:    true,
		Post:      post,
		CSRFToken: csrf.Token(r),
	})
}

// handleEditPost handles "POST /{username}/{post_id}/edit/".
func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.postFromRoute(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	readURL := postURL(post.Author.Username, post.ID)
	if !auth.CanEdit(auth.GetUser(r.Context()), post) {
		http.Redirect(w, r, readURL, http.StatusFound)
		return
	}
	form, values, closeUpload, err := s.readPostForm(w, r)
	defer closeUpload()
	if err != nil {
		errs.ReturnFormError(w, r, err, values)
		return
	}
	_, err = s.ps.Update(r.Context(), auth.GetUser(r.Context()), post, form)
	switch errs.ErrorCode(err) {
	case "":
	case errs.EINVALID:
		errs.ReturnFormError(w, r, err, values)
		return
	case errs.EFORBIDDEN:
		http.Redirect(w, r, readURL, http.StatusFound)
		return
	default:
		s.handleError(w, r, err)
		return
	}
	s.invalidateFeed(r)
	http.Redirect(w, r, readURL, http.StatusFound)
}

// handleCreateComment handles "POST /{username}/{post_id}/comment/".
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	post, err := s.postFromRoute(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.EINVALID, "Malformed form."))
		return
	}
	form := domain.CommentForm{Text: r.PostForm.Get("text")}
	if _, err := s.cs.Create(r.Context(), auth.GetUser(r.Context()), post, form); err != nil {
		if errs.ErrorCode(err) == errs.EINVALID {
			errs.ReturnFormError(w, r, err, form)
			return
		}
		s.handleError(w, r, err)
		return
	}
	// The global feed shows comment counts.
	s.invalidateFeed(r)
	http.Redirect(w, r, postURL(post.Author.Username, post.ID), http.StatusFound)
}

// postFromRoute loads the post named by the username and post_id route variables.
func (s *Server) postFromRoute(r *http.Request) (*domain.Post, error) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["post_id"])
	if err != nil {
		return nil, errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
	}
	return s.ps.ByAuthorAndID(r.Context(), vars["username"], id)
}

// readPostForm parses a submitted post form. The returned close function is never nil.
func (s *Server) readPostForm(w http.ResponseWriter, r *http.Request) (domain.PostForm, postFormValues, func(), error) {
	var form domain.PostForm
	var values postFormValues
	noop := func() {}
	if err := parseForm(w, r); err != nil {
		return form, values, noop, err
	}
	values = postFormValues{
		Text:  r.PostFormValue("text"),
		Group: r.PostFormValue("group"),
	}
	form.Text = values.Text
	if values.Group != "" {
		id, err := strconv.Atoi(values.Group)
		if err != nil {
			return form, values, noop, errs.FieldError("group", "Select a valid choice. That choice is not one of the available choices.")
		}
		form.GroupID = &id
	}
	form.ClearImage = r.PostFormValue("clear_image") != ""
	upload, file, err := formUpload(r, "image")
	if err != nil {
		return form, values, noop, errs.FieldError("image", "The uploaded file could not be read.")
	}
	if file == nil {
		return form, values, noop, nil
	}
	form.Image = upload
	return form, values, func() { file.Close() }, nil
}
